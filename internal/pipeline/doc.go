// Package pipeline turns a source image and a target video into a face
// swapped output video.
package pipeline
