package domain

import "context"

// FaceEngine is the external detection/swap model. All calls are synchronous,
// potentially slow and fallible. Images are encoded (JPEG/PNG) bytes.
type FaceEngine interface {
	Detect(ctx context.Context, image []byte) ([]Face, error)
	// LargestFace returns nil without error when the image holds no face.
	LargestFace(ctx context.Context, image []byte) (*Face, error)
	Swap(ctx context.Context, image []byte, source, target Face) ([]byte, error)
}

// ImageEnhancer post-processes a swapped still image.
type ImageEnhancer interface {
	Enhance(ctx context.Context, image []byte) ([]byte, error)
}

// TranscodeProfile selects the encoding settings used by Codec.Transcode.
type TranscodeProfile string

const (
	ProfileCompatibility TranscodeProfile = "compatibility"
	ProfileStreaming     TranscodeProfile = "streaming"
)

// Codec demuxes, muxes and transcodes video containers.
type Codec interface {
	ExtractFrames(ctx context.Context, path string) ([]Frame, float64, error)
	BuildVideo(ctx context.Context, frames []Frame, fps float64) (string, error)
	Transcode(ctx context.Context, path string, profile TranscodeProfile) (string, error)
}
