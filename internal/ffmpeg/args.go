// Package ffmpeg builds the argument vectors for the three ffmpeg
// transformations of the pipeline. Builders are pure; running them is the
// job of internal/process.
package ffmpeg

import (
	"fmt"
	"strings"

	"captionflow/internal/media"
)

// Subtitle style burned into the video.
const SubtitleStyle = "FontName=Arial,FontSize=20,Outline=1,Shadow=1,Alignment=2"

// ExtractAudio produces mono 16 kHz PCM, the input format whisper expects.
func ExtractAudio(src, out string) []string {
	return []string{
		"-y",
		"-i", src,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		out,
	}
}

// CompressInput describes the sources of a compress+mux run. Audio is
// optional; Dimensions, when set, crop the video.
type CompressInput struct {
	Video      string
	Audio      string
	Dimensions *media.VideoDimensions
}

// CompressAndMux re-encodes the video to HEVC tagged for Apple players and,
// when an audio source is given, replaces the audio track with it.
func CompressAndMux(in CompressInput, out string) []string {
	args := make([]string, 0, 32)

	// --- Inputs ---
	args = append(args, "-y", "-i", in.Video)
	if in.Audio != "" {
		args = append(args,
			"-i", in.Audio,
			"-map", "0:v:0",
			"-map", "1:a:0",
		)
	}

	// --- Video filter ---
	if d := in.Dimensions; d != nil {
		args = append(args, "-filter:v", fmt.Sprintf("crop=%d:%d", d.Width, d.Height))
	}

	// --- Codecs ---
	args = append(args,
		"-c:v", "libx265",
		"-preset", "medium",
		"-crf", "25",
		"-tag:v", "hvc1",
		"-c:a", "aac",
		"-b:a", "128k",
	)

	// --- Container ---
	args = append(args, "-movflags", "+faststart", out)
	return args
}

// BurnInFilter returns the -vf value that renders srtPath onto the video,
// scaled to dims when given.
func BurnInFilter(srtPath string, dims *media.VideoDimensions) string {
	filter := fmt.Sprintf("subtitles=%s:force_style='%s'", escapeFilterValue(srtPath), SubtitleStyle)
	if dims != nil {
		filter += fmt.Sprintf(",scale=%d:%d", dims.Width, dims.Height)
	}
	return filter
}

// BurnIn re-encodes video with filter applied, copying the audio stream.
func BurnIn(video, filter, out string) []string {
	return []string{
		"-y",
		"-i", video,
		"-vf", filter,
		"-c:a", "copy",
		out,
	}
}

// escapeFilterValue escapes characters that the filtergraph parser treats
// as separators inside an option value.
func escapeFilterValue(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
		`,`, `\,`,
		`[`, `\[`,
		`]`, `\]`,
		`;`, `\;`,
	)
	return r.Replace(s)
}
