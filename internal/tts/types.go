package tts

import (
	"context"
	"errors"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	Text    string
	Voice   string
	Bitrate string
}

// Synthesizer is the contract for producing encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) ([]byte, error)
}

var (
	// ErrEmptyText is returned before any upstream call when the text is blank.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrSynthesisFailed wraps every upstream or storage failure.
	ErrSynthesisFailed = errors.New("failed to generate audio")
	errEmptyAudio      = errors.New("received empty audio data")
)
