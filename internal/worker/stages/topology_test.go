package stages

import (
	"testing"

	"captionflow/internal/contextstore"
	apperrors "captionflow/internal/pkg/errors"
)

func TestParsePipeline(t *testing.T) {
	tests := []struct {
		in      string
		want    Pipeline
		wantErr bool
	}{
		{"", PipelinePublish, false},
		{"publish", PipelinePublish, false},
		{" Burn-In ", PipelineBurnIn, false},
		{"render", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePipeline(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePipeline(%q) error = %v", tt.in, err)
			continue
		}
		if tt.wantErr && !apperrors.IsValidation(err) {
			t.Errorf("ParsePipeline(%q) expected validation error, got %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePipeline(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPipelineGraphs(t *testing.T) {
	if PipelinePublish.Entry() != TopicCompress {
		t.Errorf("publish entry = %s", PipelinePublish.Entry())
	}
	if PipelineBurnIn.Entry() != TopicExtractAudio {
		t.Errorf("burn-in entry = %s", PipelineBurnIn.Entry())
	}

	walk := func(p Pipeline) []string {
		out := []string{p.Entry()}
		for {
			next, ok := p.Next(out[len(out)-1])
			if !ok {
				return out
			}
			out = append(out, next)
		}
	}
	if got := walk(PipelinePublish); len(got) != 4 || got[3] != TopicPublish {
		t.Errorf("publish graph = %v", got)
	}
	if got := walk(PipelineBurnIn); len(got) != 3 || got[2] != TopicBurnIn {
		t.Errorf("burn-in graph = %v", got)
	}
	if _, ok := PipelinePublish.Next(TopicBurnIn); ok {
		t.Error("burn-in is not part of publish")
	}
}

func TestStageKeys(t *testing.T) {
	if k, _ := StageKey(TopicTranscribe); k != contextstore.KeySubtitles {
		t.Errorf("transcribe key = %s", k)
	}
	if _, ok := StageKey(TopicPublish); ok {
		t.Error("publish writes no context key")
	}
}
