// Package domain holds the face-swap vocabulary shared by every layer: faces
// and frames, job states, sentinel errors, and the contracts for the face
// engine, the video codec, file storage and job persistence.
//
// Nothing here performs I/O. Adapters implement the interfaces; the app,
// pipeline and live packages consume them.
package domain
