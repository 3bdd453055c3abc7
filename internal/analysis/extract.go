package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// AudioExtractor pulls the audio track out of a video payload to shrink
// what gets uploaded.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, payload []byte) ([]byte, error)
}

// FFmpegExtractor extracts audio by round-tripping the payload through
// temp files with ffmpeg.
type FFmpegExtractor struct{}

// ExtractAudio transcodes the payload's audio track into an MP4 (AAC)
// container and returns its bytes.
func (FFmpegExtractor) ExtractAudio(ctx context.Context, payload []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "parley-extract-*")
	if err != nil {
		return nil, fmt.Errorf("create extract workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input")
	outPath := filepath.Join(dir, "audio.m4a")
	if err := os.WriteFile(inPath, payload, 0600); err != nil {
		return nil, fmt.Errorf("write extract input: %w", err)
	}

	err = ffmpeg.Input(inPath).
		Output(outPath, ffmpeg.KwArgs{"vn": "", "acodec": "aac", "b:a": "64k"}).
		OverWriteOutput().
		Run()
	if err != nil {
		return nil, fmt.Errorf("audio extraction failed: %w", err)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read extracted audio: %w", err)
	}
	return out, nil
}
