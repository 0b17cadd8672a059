package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pscheid92/faceswap/internal/adapter/faceengine"
	"github.com/pscheid92/faceswap/internal/adapter/ffmpeg"
	"github.com/pscheid92/faceswap/internal/facecache"
	"github.com/pscheid92/faceswap/internal/pipeline"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type swapOptions struct {
	Source      string
	Target      string
	Output      string
	EngineURL   string
	Timeout     time.Duration
	FFmpegPath  string
	FFprobePath string
	Workers     int
	BatchSize   int
	MaxFrames   int
}

func newSwapCmd() *cobra.Command {
	opts := swapOptions{}

	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap the face from --source onto every face in the --target video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			return runSwap(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Source, "source", "s", "", "Path to the source face image")
	f.StringVarP(&opts.Target, "target", "t", "", "Path to the target video")
	f.StringVarP(&opts.Output, "out", "o", "swapped.mp4", "Path of the resulting video")
	f.StringVar(&opts.EngineURL, "engine-url", os.Getenv("FACE_ENGINE_URL"), "Face engine base URL (default $FACE_ENGINE_URL)")
	f.DurationVar(&opts.Timeout, "engine-timeout", 30*time.Second, "Timeout for a single face engine request")
	f.StringVar(&opts.FFmpegPath, "ffmpeg", "ffmpeg", "Path to the ffmpeg binary")
	f.StringVar(&opts.FFprobePath, "ffprobe", "ffprobe", "Path to the ffprobe binary")
	f.IntVarP(&opts.Workers, "workers", "w", 4, "Frames swapped in parallel")
	f.IntVarP(&opts.BatchSize, "batch-size", "b", 4, "Frames per batch")
	f.IntVar(&opts.MaxFrames, "max-frames", 0, "Stop after this many frames (0 = all)")
	return cmd
}

func (o swapOptions) validate() error {
	var errs []error
	if o.Source == "" {
		errs = append(errs, errors.New("--source is required"))
	}
	if o.Target == "" {
		errs = append(errs, errors.New("--target is required"))
	}
	if o.EngineURL == "" {
		errs = append(errs, errors.New("--engine-url or FACE_ENGINE_URL is required"))
	}
	if o.Workers < 1 {
		errs = append(errs, errors.New("--workers must be at least 1"))
	}
	if o.BatchSize < 1 {
		errs = append(errs, errors.New("--batch-size must be at least 1"))
	}
	if o.MaxFrames < 0 {
		errs = append(errs, errors.New("--max-frames must not be negative"))
	}
	return errors.Join(errs...)
}

func runSwap(cmd *cobra.Command, opts swapOptions) error {
	ctx := cmd.Context()

	outDir := filepath.Dir(opts.Output)
	codec, err := ffmpeg.New(ffmpeg.Config{
		FFmpegPath:  opts.FFmpegPath,
		FFprobePath: opts.FFprobePath,
		OutputDir:   outDir,
		MaxFrames:   opts.MaxFrames,
	})
	if err != nil {
		return err
	}

	faces, err := facecache.New(1, nil)
	if err != nil {
		return err
	}

	engine := faceengine.NewClient(faceengine.Config{BaseURL: opts.EngineURL, Timeout: opts.Timeout}, nil)
	p := pipeline.New(codec, engine, faces, pipeline.Options{
		Concurrency: opts.Workers,
		BatchSize:   opts.BatchSize,
	}, nil, nil)

	bar := newFrameBar(cmd.ErrOrStderr())
	result, err := p.Process(ctx, opts.Source, opts.Target, func(processed, total int) {
		bar.ChangeMax(total)
		_ = bar.Set(processed)
	})
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("swap failed: %w", err)
	}

	if err := os.Rename(result, opts.Output); err != nil {
		return fmt.Errorf("failed to move result to %s: %w", opts.Output, err)
	}
	slog.Info("Swap finished", "output", opts.Output)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), opts.Output)
	return err
}

func newFrameBar(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Swapping"),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowIts(),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(w) }),
	)
}
