// Package media wraps the external transcoding collaborator. The service
// treats it as a black box with a success/failure outcome per call.
package media

import "context"

// Clip is one rendered segment with its intended duration in seconds. The
// duration is carried so concatenation with transitions can compute overlap
// offsets without probing the files.
type Clip struct {
	Path    string
	Seconds float64
}

// Pipeline produces fixed-geometry silent clips from still images and muxes
// an ordered clip list with an audio track into one video. The combined
// output is truncated to the shorter of the visual track and the audio.
type Pipeline interface {
	MakeClip(ctx context.Context, imagePath string, seconds float64, outPath string) error
	Mux(ctx context.Context, clips []Clip, audioPath, outPath string, transitionSeconds float64) error
}
