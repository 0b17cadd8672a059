// Package ffmpeg implements domain.Codec by shelling out to ffmpeg and
// ffprobe. Frames travel as JPEGs over image2pipe in both directions.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/faceswap/internal/domain"
)

const (
	maxFrameBytes = 64 << 20
	waitDelay     = 5 * time.Second
)

// Config selects the binaries and where produced videos are written.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	OutputDir   string
	// MaxFrames limits extraction. Zero means every frame.
	MaxFrames int
}

type Codec struct {
	ffmpeg    string
	ffprobe   string
	outputDir string
	maxFrames int
}

var _ domain.Codec = (*Codec)(nil)

func New(cfg Config) (*Codec, error) {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Codec{
		ffmpeg:    cfg.FFmpegPath,
		ffprobe:   cfg.FFprobePath,
		outputDir: cfg.OutputDir,
		maxFrames: cfg.MaxFrames,
	}, nil
}

// ExtractFrames decodes every frame of the video at path into JPEG bytes.
// A probe failure or a decode failure is ErrUnreadableVideo.
func (c *Codec) ExtractFrames(ctx context.Context, path string) ([]domain.Frame, float64, error) {
	fps, err := c.probeFrameRate(ctx, path)
	if err != nil {
		return nil, 0, errors.Join(domain.ErrUnreadableVideo, err)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-i", path}
	if c.maxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(c.maxFrames))
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2", "-")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := newCommand(ctx, c.ffmpeg, args...)
	cmd.WaitDelay = waitDelay
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, 0, errors.Join(domain.ErrUnreadableVideo, cmd.wrap(err))
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1<<20), maxFrameBytes)
	scanner.Split(SplitJPEG)

	var frames []domain.Frame
	for scanner.Scan() {
		img := make([]byte, len(scanner.Bytes()))
		copy(img, scanner.Bytes())
		frames = append(frames, domain.Frame{Index: len(frames), Image: img})
	}
	if err := scanner.Err(); err != nil {
		// ffmpeg blocks on a full pipe once nobody reads it.
		cancel()
		_ = cmd.Wait()
		return nil, 0, errors.Join(domain.ErrUnreadableVideo, err)
	}

	if err := cmd.Wait(); err != nil {
		return nil, 0, errors.Join(domain.ErrUnreadableVideo, cmd.wrap(err))
	}
	if len(frames) == 0 {
		return nil, 0, fmt.Errorf("%w: no frames decoded", domain.ErrUnreadableVideo)
	}

	slog.DebugContext(ctx, "Frames extracted", "path", path, "frames", len(frames), "fps", fps)
	return frames, fps, nil
}

// BuildVideo encodes frames, in slice order, into a new MPEG-4 file at fps.
func (c *Codec) BuildVideo(ctx context.Context, frames []domain.Frame, fps float64) (string, error) {
	if len(frames) == 0 {
		return "", errors.New("no frames to encode")
	}
	if fps <= 0 {
		fps = defaultFPS
	}

	out := filepath.Join(c.outputDir, "swapped_"+uuid.NewString()+".mp4")
	cmd := newCommand(ctx, c.ffmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "image2pipe",
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-c:v", "mpeg4", "-q:v", "2",
		"-pix_fmt", "yuv420p",
		out,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create ffmpeg stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", cmd.wrap(err)
	}

	var writeErr error
	for _, f := range frames {
		if _, writeErr = stdin.Write(f.Image); writeErr != nil {
			break
		}
	}
	closeErr := stdin.Close()

	if err := cmd.Wait(); err != nil {
		_ = os.Remove(out)
		return "", cmd.wrap(err)
	}
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("failed to write frames to ffmpeg: %w", err)
	}
	return out, nil
}

// Transcode re-encodes path to H.264 with the settings of profile and
// returns the new file's path. The input is left in place.
func (c *Codec) Transcode(ctx context.Context, path string, profile domain.TranscodeProfile) (string, error) {
	args, err := profileArgs(profile)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(c.outputDir, base+"_"+string(profile)+".mp4")

	full := append([]string{"-hide_banner", "-loglevel", "error", "-y", "-i", path}, args...)
	full = append(full, out)

	cmd := newCommand(ctx, c.ffmpeg, full...)
	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		return "", cmd.wrap(err)
	}
	return out, nil
}

func profileArgs(profile domain.TranscodeProfile) ([]string, error) {
	common := []string{"-c:v", "libx264", "-pix_fmt", "yuv420p"}
	switch profile {
	case domain.ProfileCompatibility:
		return append(common, "-preset", "medium", "-crf", "23"), nil
	case domain.ProfileStreaming:
		return append(common,
			"-preset", "fast", "-crf", "28",
			"-maxrate", "2M", "-bufsize", "4M",
			"-movflags", "+faststart",
		), nil
	default:
		return nil, fmt.Errorf("unknown transcode profile %q", profile)
	}
}
