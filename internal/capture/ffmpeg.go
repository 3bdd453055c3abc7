package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/recording"
)

// FFmpegSource captures microphone (and optionally camera) input by running
// ffmpeg and reading encoded container bytes from its stdout.
type FFmpegSource struct {
	Command          string
	AudioInputFormat string // e.g. pulse, alsa, avfoundation
	VideoInputFormat string // e.g. v4l2, avfoundation
}

// NewFFmpegSource creates a source using the given ffmpeg command.
func NewFFmpegSource(command string) *FFmpegSource {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegSource{
		Command:          command,
		AudioInputFormat: "pulse",
		VideoInputFormat: "v4l2",
	}
}

// Open starts an encoder process for the request. Failure to start (missing
// device, permission, dead binary) surfaces synchronously.
func (s *FFmpegSource) Open(ctx context.Context, req OpenRequest) (MediaSession, error) {
	audioDevice := req.Hints.AudioDevice
	if audioDevice == "" {
		audioDevice = "default"
	}

	args := []string{"-nostdin", "-hide_banner", "-loglevel", "warning"}

	if req.Kind == recording.KindVideo {
		videoDevice := req.Hints.VideoDevice
		if videoDevice == "" {
			videoDevice = "/dev/video0"
		}
		args = append(args,
			"-f", s.VideoInputFormat, "-i", videoDevice,
			"-f", s.AudioInputFormat, "-i", audioDevice,
		)
	} else {
		args = append(args, "-f", s.AudioInputFormat, "-i", audioDevice)
	}

	args = append(args, encodeArgs(req)...)
	args = append(args, "-")

	cmd := exec.CommandContext(ctx, s.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// An immediate exit means the device or encoder is unusable; report it
	// now rather than letting the first Read discover a dead pipe.
	select {
	case err := <-waitErr:
		detail := strings.TrimSpace(stderr.String())
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, detail)
		}
		return nil, fmt.Errorf("ffmpeg exited before capture started: %s", detail)
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

// encodeArgs maps the negotiated encoder onto ffmpeg output flags.
func encodeArgs(req OpenRequest) []string {
	switch req.EncoderID {
	case "aac":
		// Fragmented MP4: stdout is not seekable.
		return []string{"-c:a", "aac", "-movflags", "frag_keyframe+empty_moov", "-f", "mp4"}
	case "libopus":
		return []string{"-c:a", "libopus", "-f", "webm"}
	case "libx264":
		return []string{"-c:v", "libx264", "-preset", "veryfast", "-c:a", "aac",
			"-movflags", "frag_keyframe+empty_moov", "-f", "mp4"}
	default: // libvpx
		return []string{"-c:v", "libvpx", "-c:a", "libopus", "-f", "webm"}
	}
}

type ffmpegSession struct {
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		_ = s.stdout.Close()

		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.stopErr
}

// An interrupted encoder exiting non-zero is the expected stop path.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return nil
	}
	return err
}

// FFmpegProbe answers encoder support by asking the binary once and caching
// the answer, so negotiation is stable for the process lifetime.
type FFmpegProbe struct {
	Command string

	once     sync.Once
	encoders map[string]bool
}

// NewFFmpegProbe creates a probe for the given ffmpeg command.
func NewFFmpegProbe(command string) *FFmpegProbe {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegProbe{Command: command}
}

// Supports reports whether the platform encoder list includes encoderID.
func (p *FFmpegProbe) Supports(encoderID string) bool {
	p.once.Do(p.load)
	return p.encoders[encoderID]
}

func (p *FFmpegProbe) load() {
	p.encoders = make(map[string]bool)

	out, err := exec.Command(p.Command, "-hide_banner", "-encoders").Output()
	if err != nil {
		return
	}

	// Each encoder line looks like " A....D aac  AAC (Advanced Audio Coding)".
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && len(fields[0]) >= 1 {
			switch fields[0][0] {
			case 'A', 'V':
				p.encoders[fields[1]] = true
			}
		}
	}
}
