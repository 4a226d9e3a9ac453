package stages

import (
	"strings"

	"captionflow/internal/contextstore"
	apperrors "captionflow/internal/pkg/errors"
)

// Queue topics, one per stage.
const (
	TopicCompress     = "compress-video-and-add-audio"
	TopicExtractAudio = "extract-audio"
	TopicTranscribe   = "generate-subtitles"
	TopicBurnIn       = "add-subtitles"
	TopicPublish      = "upload-files"
)

// Pipeline names a stage graph chosen at dispatch time.
type Pipeline string

const (
	// PipelinePublish compresses first, transcribes the final mp4's audio and
	// publishes video and captions as separate assets.
	PipelinePublish Pipeline = "publish"
	// PipelineBurnIn transcribes the source and renders the captions into a
	// new local video.
	PipelineBurnIn Pipeline = "burn-in"
)

var graphs = map[Pipeline][]string{
	PipelinePublish: {TopicCompress, TopicExtractAudio, TopicTranscribe, TopicPublish},
	PipelineBurnIn:  {TopicExtractAudio, TopicTranscribe, TopicBurnIn},
}

var stageKeys = map[string]contextstore.StageKey{
	TopicCompress:     contextstore.KeyCompress,
	TopicExtractAudio: contextstore.KeyExtractAudio,
	TopicTranscribe:   contextstore.KeySubtitles,
	TopicBurnIn:       contextstore.KeyBurnIn,
}

// ParsePipeline validates s. The empty string selects PipelinePublish.
func ParsePipeline(s string) (Pipeline, error) {
	p := Pipeline(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PipelinePublish, nil
	}
	if _, ok := graphs[p]; !ok {
		return "", apperrors.ValidationField("pipeline", "must be one of publish, burn-in")
	}
	return p, nil
}

// Stages returns the topics of p in execution order.
func (p Pipeline) Stages() []string {
	return append([]string(nil), graphs[p]...)
}

// Entry is the first topic of p.
func (p Pipeline) Entry() string {
	g := graphs[p]
	if len(g) == 0 {
		return ""
	}
	return g[0]
}

// Next returns the topic after topic in p, and false when topic is the last
// stage or not part of p.
func (p Pipeline) Next(topic string) (string, bool) {
	g := graphs[p]
	for i, t := range g {
		if t == topic && i+1 < len(g) {
			return g[i+1], true
		}
	}
	return "", false
}

// AllTopics lists every topic any pipeline uses.
func AllTopics() []string {
	return []string{TopicCompress, TopicExtractAudio, TopicTranscribe, TopicBurnIn, TopicPublish}
}

// StageKey returns the context key a topic's stage writes.
func StageKey(topic string) (contextstore.StageKey, bool) {
	k, ok := stageKeys[topic]
	return k, ok
}
