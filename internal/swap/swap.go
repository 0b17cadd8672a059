// Package swap applies a source face onto every face detected in an image.
package swap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pscheid92/faceswap/internal/domain"
)

// SourceFace returns the largest face in image, or domain.ErrNoFaceDetected.
func SourceFace(ctx context.Context, engine domain.FaceEngine, image []byte) (domain.Face, error) {
	face, err := engine.LargestFace(ctx, image)
	if err != nil {
		return domain.Face{}, fmt.Errorf("failed to detect source face: %w", err)
	}
	if face == nil {
		return domain.Face{}, domain.ErrNoFaceDetected
	}
	return *face, nil
}

// AllFaces detects every face in image and swaps each with source,
// accumulating onto a working copy. It returns the result and the number of
// faces swapped. An image without faces comes back unchanged. A failing swap
// for one face is skipped and the remaining faces are still processed.
func AllFaces(ctx context.Context, engine domain.FaceEngine, image []byte, source domain.Face) ([]byte, int, error) {
	targets, err := engine.Detect(ctx, image)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to detect faces: %w", err)
	}
	if len(targets) == 0 {
		return image, 0, nil
	}

	working := image
	swapped := 0
	for i, target := range targets {
		out, err := engine.Swap(ctx, working, source, target)
		if err != nil {
			slog.DebugContext(ctx, "Face swap failed, skipping face", "face_index", i, "error", err)
			continue
		}
		working = out
		swapped++
	}
	return working, swapped, nil
}
