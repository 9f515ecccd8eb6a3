package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execSynth runs a local engine that reads a JSON request on stdin and writes
// encoded audio to stdout. Calls are serialized.
type execSynth struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text    string `json:"text"`
	Voice   string `json:"voice"`
	Bitrate string `json:"bitrate,omitempty"`
	Format  string `json:"format"`
}

func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := json.Marshal(execRequest{
		Text:    req.Text,
		Voice:   req.Voice,
		Bitrate: req.Bitrate,
		Format:  "mp3",
	})
	if err != nil {
		return nil, err
	}

	// #nosec G204 -- command comes from operator configuration
	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	audio, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("tts command failed: %w - stderr: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	if len(audio) == 0 {
		return nil, errEmptyAudio
	}
	return audio, nil
}
