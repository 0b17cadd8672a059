package domain

// BoundingBox is a face location in pixel coordinates.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Area returns the box area, zero for degenerate boxes.
func (b BoundingBox) Area() float64 {
	w := b.X2 - b.X1
	h := b.Y2 - b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Face is an opaque detection result. Treat it as immutable once obtained.
type Face struct {
	Box       BoundingBox  `json:"bbox"`
	Score     float64      `json:"score,omitempty"`
	Landmarks [][2]float64 `json:"landmarks,omitempty"`
	Embedding []float32    `json:"embedding,omitempty"`
}

// Frame is one encoded image of a video sequence. Index is its position in
// the source sequence and is unique within one job.
type Frame struct {
	Index int
	Image []byte
}
