// Package readiness tracks which upstream clients finished initializing.
package readiness

import "sync/atomic"

// Checker reports per-service readiness. Flags only ever move from false to true.
type Checker interface {
	SpeechReady() bool
	ChatReady() bool
}

// Flags is the process-wide readiness state, created once at startup.
type Flags struct {
	speech atomic.Bool
	chat   atomic.Bool
}

func New() *Flags { return &Flags{} }

// MarkSpeechReady flips the speech flag and reports whether this call did so.
func (f *Flags) MarkSpeechReady() bool { return f.speech.CompareAndSwap(false, true) }

// MarkChatReady flips the chat flag and reports whether this call did so.
func (f *Flags) MarkChatReady() bool { return f.chat.CompareAndSwap(false, true) }

func (f *Flags) SpeechReady() bool { return f.speech.Load() }

func (f *Flags) ChatReady() bool { return f.chat.Load() }

// AllReady reports whether every service is ready.
func (f *Flags) AllReady() bool { return f.SpeechReady() && f.ChatReady() }
