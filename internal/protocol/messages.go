package protocol

import "time"

// BreathingSession is the summary a client reports after a breathing exercise.
// It is broadcast on the bus and never stored.
type BreathingSession struct {
	TechniqueID          string    `json:"technique_id"`
	TechniqueName        string    `json:"technique_name"`
	CyclesCompleted      int       `json:"cycles_completed"`
	TotalDurationSeconds float64   `json:"total_duration_seconds"`
	SessionDate          string    `json:"session_date"`
	ReceivedAt           time.Time `json:"received_at"`
}

// AudioEvent announces a change in the lifecycle of a generated audio file.
type AudioEvent struct {
	AudioID   string    `json:"audio_id"`
	Reason    string    `json:"reason"`
	Voice     string    `json:"voice,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectBreathingSession = "sleep.breathing.session"
	SubjectAudioCreated     = "sleep.audio.created"
	SubjectAudioDeleted     = "sleep.audio.deleted"
	SubjectAudioSwept       = "sleep.audio.swept"
)

// Audio event reasons.
const (
	ReasonSynthesized = "synthesized"
	ReasonDeleted     = "client_delete"
	ReasonExpired     = "expired"
)
