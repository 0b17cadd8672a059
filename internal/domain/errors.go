package domain

import "errors"

var (
	ErrNoFaceDetected   = errors.New("no face detected")
	ErrUnreadableVideo  = errors.New("unreadable video")
	ErrUnreadableImage  = errors.New("unreadable image")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSourceNotReady   = errors.New("source face not set")
	ErrWorkerFailure    = errors.New("worker failure")
	ErrTranscodeFailure = errors.New("transcode failure")
	ErrJobNotFound      = errors.New("job not found")

	// ErrEngineUnavailable means the face engine is shedding load and calls fail fast.
	ErrEngineUnavailable = errors.New("face engine unavailable")

	// ErrQueueFull means the job queue cannot accept another video.
	ErrQueueFull = errors.New("job queue full")
)
