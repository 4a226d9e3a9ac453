package transcriber

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"captionflow/internal/pkg/errors"
)

// Transcript is the subset of whisper.cpp's full JSON output we read.
type Transcript struct {
	Transcription []Segment `json:"transcription"`
}

// Segment is one transcription unit; with split-on-word it is one word.
type Segment struct {
	Text    string  `json:"text"`
	Offsets Offsets `json:"offsets"`
	Tokens  []Token `json:"tokens"`
}

// Offsets are milliseconds from the start of the audio.
type Offsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type Token struct {
	Text    string  `json:"text"`
	Offsets Offsets `json:"offsets"`
	P       float64 `json:"p"`
	// TDTW is the DTW token timestamp in centiseconds, -1 when unavailable.
	TDTW int64 `json:"t_dtw"`
}

// Caption is one timed piece of text in the captions JSON artifact.
type Caption struct {
	Text        string   `json:"text"`
	StartMs     int64    `json:"startMs"`
	EndMs       int64    `json:"endMs"`
	TimestampMs *int64   `json:"timestampMs"`
	Confidence  *float64 `json:"confidence"`
}

// ToCaptions converts engine output to captions in order. Empty segments
// are skipped and the leading space of the first caption is trimmed.
func ToCaptions(t Transcript) []Caption {
	captions := make([]Caption, 0, len(t.Transcription))
	for _, seg := range t.Transcription {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		text := seg.Text
		if len(captions) == 0 {
			text = strings.TrimLeft(text, " ")
		}
		c := Caption{
			Text:    text,
			StartMs: seg.Offsets.From,
			EndMs:   seg.Offsets.To,
		}
		if n := len(seg.Tokens); n > 0 {
			last := seg.Tokens[n-1]
			p := last.P
			c.Confidence = &p
			if last.TDTW >= 0 {
				ts := last.TDTW * 10
				c.TimestampMs = &ts
			}
		}
		captions = append(captions, c)
	}
	return captions
}

// WriteCaptionsJSON writes captions as indented JSON.
func WriteCaptionsJSON(path string, captions []Caption) error {
	raw, err := json.MarshalIndent(captions, "", "  ")
	if err != nil {
		return errors.Wrap(err, "transcriber.write_json", "encode captions")
	}
	return writeFileAtomic(path, raw)
}

// WriteSRT writes captions as a SubRip file.
func WriteSRT(path string, captions []Caption) error {
	var b strings.Builder
	for i, c := range captions {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, SRTTimestamp(c.StartMs), SRTTimestamp(c.EndMs), strings.TrimSpace(c.Text))
	}
	return writeFileAtomic(path, []byte(b.String()))
}

// SRTTimestamp formats ms as HH:MM:SS,mmm.
func SRTTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "transcriber.write", "create temp file")
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "transcriber.write", "write")
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "transcriber.write", "flush")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "transcriber.write", "close")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrap(err, "transcriber.write", "chmod")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "transcriber.write", "rename")
	}
	return nil
}
