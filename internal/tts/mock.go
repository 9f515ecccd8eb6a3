package tts

import (
	"context"
	"time"
)

// silentFrame is an ID3 header followed by one silent MPEG-1 Layer III frame.
var silentFrame = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"),
	0xFF, 0xFB, 0x90, 0x64, 0x00, 0x00, 0x00, 0x00)

type mockSynth struct{}

func NewMockSynth() Synthesizer { return &mockSynth{} }

func (m *mockSynth) Synthesize(ctx context.Context, _ SynthRequest) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	out := make([]byte, len(silentFrame))
	copy(out, silentFrame)
	return out, nil
}
