package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	"github.com/pscheid92/faceswap/internal/batch"
	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/pscheid92/faceswap/internal/facecache"
	"github.com/pscheid92/faceswap/internal/swap"
)

// Options configures frame parallelism.
type Options struct {
	Concurrency int
	BatchSize   int
}

// ProgressFunc receives the cumulative number of processed frames.
type ProgressFunc func(processed, total int)

// Pipeline composes the codec, the face cache, the batch runner and the face
// engine. It holds no per-job state and is safe for concurrent jobs.
type Pipeline struct {
	codec  domain.Codec
	engine domain.FaceEngine
	faces  *facecache.Cache
	opts   Options

	batchMetrics *metrics.BatchMetrics
	jobMetrics   *metrics.JobMetrics
	readFile     func(name string) ([]byte, error)
}

// New creates a pipeline. Metrics may be nil.
func New(codec domain.Codec, engine domain.FaceEngine, faces *facecache.Cache, opts Options, batchMetrics *metrics.BatchMetrics, jobMetrics *metrics.JobMetrics) *Pipeline {
	return &Pipeline{
		codec:        codec,
		engine:       engine,
		faces:        faces,
		opts:         opts,
		batchMetrics: batchMetrics,
		jobMetrics:   jobMetrics,
		readFile:     os.ReadFile,
	}
}

// SourceFace returns the cached largest face of the image stored at
// sourceKey, detecting it on first use.
func (p *Pipeline) SourceFace(ctx context.Context, sourceKey string) (domain.Face, error) {
	return p.faces.Get(ctx, sourceKey, func(ctx context.Context) (domain.Face, error) {
		image, err := p.readFile(sourceKey)
		if err != nil {
			return domain.Face{}, fmt.Errorf("%w: %w", domain.ErrUnreadableImage, err)
		}
		return swap.SourceFace(ctx, p.engine, image)
	})
}

// Process runs the full batch path and returns the output video path.
// A failed transcode falls back to the untranscoded output.
func (p *Pipeline) Process(ctx context.Context, sourceKey, targetPath string, onProgress ProgressFunc) (string, error) {
	frames, fps, err := p.codec.ExtractFrames(ctx, targetPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUnreadableVideo, err)
	}
	if len(frames) == 0 {
		return "", fmt.Errorf("%w: no frames in %s", domain.ErrUnreadableVideo, targetPath)
	}
	slog.DebugContext(ctx, "Frames extracted", "frames", len(frames), "fps", fps)

	source, err := p.SourceFace(ctx, sourceKey)
	if err != nil {
		return "", err
	}

	worker := func(ctx context.Context, f domain.Frame) (domain.Frame, error) {
		out, _, err := swap.AllFaces(ctx, p.engine, f.Image, source)
		if err != nil {
			return f, err
		}
		return domain.Frame{Index: f.Index, Image: out}, nil
	}

	processed := batch.Run(ctx, frames, worker, batch.Options{
		Concurrency: p.opts.Concurrency,
		BatchSize:   p.opts.BatchSize,
		OnProgress:  onProgress,
		OnFailure: func(index int, err error) {
			slog.WarnContext(ctx, "Frame passed through unprocessed", "frame", frames[index].Index, "error", err)
		},
		Metrics: p.batchMetrics,
	})
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("processing cancelled: %w", err)
	}

	rawPath, err := p.codec.BuildVideo(ctx, processed, fps)
	if err != nil {
		return "", fmt.Errorf("failed to build video: %w", err)
	}

	finalPath, err := p.codec.Transcode(ctx, rawPath, domain.ProfileCompatibility)
	if err != nil {
		slog.WarnContext(ctx, "Transcode failed, serving raw output",
			"path", rawPath, "error", errors.Join(domain.ErrTranscodeFailure, err))
		if p.jobMetrics != nil {
			p.jobMetrics.TranscodeFallbacks.Inc()
		}
		return rawPath, nil
	}
	return finalPath, nil
}

// Rendition transcodes an output into an additional profile, returning the
// input path unchanged when the transcode fails.
func (p *Pipeline) Rendition(ctx context.Context, path string, profile domain.TranscodeProfile) string {
	out, err := p.codec.Transcode(ctx, path, profile)
	if err != nil {
		slog.WarnContext(ctx, "Rendition transcode failed, reusing source",
			"path", path, "profile", profile, "error", errors.Join(domain.ErrTranscodeFailure, err))
		if p.jobMetrics != nil {
			p.jobMetrics.TranscodeFallbacks.Inc()
		}
		return path
	}
	return out
}

// SwapImage swaps the source face onto every face in target. Unlike video
// frames, a target without faces is reported as domain.ErrNoFaceDetected.
func (p *Pipeline) SwapImage(ctx context.Context, sourceKey string, target []byte) ([]byte, error) {
	source, err := p.SourceFace(ctx, sourceKey)
	if err != nil {
		return nil, err
	}

	out, n, err := swap.AllFaces(ctx, p.engine, target, source)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w in target image", domain.ErrNoFaceDetected)
	}
	return out, nil
}
