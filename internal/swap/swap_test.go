package swap

import (
	"context"
	"errors"
	"testing"

	"github.com/pscheid92/faceswap/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEngine struct {
	detectFn  func(ctx context.Context, image []byte) ([]domain.Face, error)
	largestFn func(ctx context.Context, image []byte) (*domain.Face, error)
	swapFn    func(ctx context.Context, image []byte, source, target domain.Face) ([]byte, error)
}

func (m *mockEngine) Detect(ctx context.Context, image []byte) ([]domain.Face, error) {
	return m.detectFn(ctx, image)
}

func (m *mockEngine) LargestFace(ctx context.Context, image []byte) (*domain.Face, error) {
	return m.largestFn(ctx, image)
}

func (m *mockEngine) Swap(ctx context.Context, image []byte, source, target domain.Face) ([]byte, error) {
	return m.swapFn(ctx, image, source, target)
}

func faces(n int) []domain.Face {
	out := make([]domain.Face, n)
	for i := range out {
		out[i] = domain.Face{Box: domain.BoundingBox{X1: float64(i), X2: float64(i + 1), Y2: 1}}
	}
	return out
}

func TestSourceFace(t *testing.T) {
	want := domain.Face{Score: 0.99}
	engine := &mockEngine{largestFn: func(context.Context, []byte) (*domain.Face, error) { return &want, nil }}

	got, err := SourceFace(context.Background(), engine, []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSourceFace_NoFace(t *testing.T) {
	engine := &mockEngine{largestFn: func(context.Context, []byte) (*domain.Face, error) { return nil, nil }}

	_, err := SourceFace(context.Background(), engine, []byte("img"))
	assert.ErrorIs(t, err, domain.ErrNoFaceDetected)
}

func TestSourceFace_EngineError(t *testing.T) {
	engine := &mockEngine{largestFn: func(context.Context, []byte) (*domain.Face, error) {
		return nil, domain.ErrUnreadableImage
	}}

	_, err := SourceFace(context.Background(), engine, []byte("img"))
	assert.ErrorIs(t, err, domain.ErrUnreadableImage)
}

func TestAllFaces_SwapsEachFaceOntoWorkingCopy(t *testing.T) {
	engine := &mockEngine{
		detectFn: func(context.Context, []byte) ([]domain.Face, error) { return faces(3), nil },
		swapFn: func(_ context.Context, image []byte, _, _ domain.Face) ([]byte, error) {
			return append(append([]byte{}, image...), '+'), nil
		},
	}

	out, n, err := AllFaces(context.Background(), engine, []byte("f"), domain.Face{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("f+++"), out)
}

func TestAllFaces_NoFacesReturnsOriginal(t *testing.T) {
	swapCalled := false
	engine := &mockEngine{
		detectFn: func(context.Context, []byte) ([]domain.Face, error) { return nil, nil },
		swapFn: func(context.Context, []byte, domain.Face, domain.Face) ([]byte, error) {
			swapCalled = true
			return nil, nil
		},
	}

	in := []byte("empty room")
	out, n, err := AllFaces(context.Background(), engine, in, domain.Face{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, in, out)
	assert.False(t, swapCalled)
}

func TestAllFaces_SkipsFailingFace(t *testing.T) {
	engine := &mockEngine{
		detectFn: func(context.Context, []byte) ([]domain.Face, error) { return faces(3), nil },
		swapFn: func(_ context.Context, image []byte, _, target domain.Face) ([]byte, error) {
			if target.Box.X1 == 1 {
				return nil, errors.New("alignment failed")
			}
			return append(append([]byte{}, image...), '+'), nil
		},
	}

	out, n, err := AllFaces(context.Background(), engine, []byte("f"), domain.Face{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("f++"), out)
}

func TestAllFaces_DetectErrorPropagates(t *testing.T) {
	engine := &mockEngine{detectFn: func(context.Context, []byte) ([]domain.Face, error) {
		return nil, domain.ErrUnreadableImage
	}}

	_, _, err := AllFaces(context.Background(), engine, []byte("garbage"), domain.Face{})
	assert.ErrorIs(t, err, domain.ErrUnreadableImage)
}
