// Package audiostore keeps generated speech as short-lived files in a shared
// directory. Files are named tts_<uuid>.mp3 and removed either explicitly or
// by a periodic age-based sweep.
package audiostore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	filePrefix    = "tts_"
	fileExtension = ".mp3"
	// FormatMP3 is the only container written by Save.
	FormatMP3       = "mp3"
	filePermissions = 0o600
)

// legacy artifacts from the WAV era are still swept.
var sweptExtensions = []string{".mp3", ".wav"}

// ErrNotFound is returned when an artifact id does not map to a file.
var ErrNotFound = errors.New("audio artifact not found")

// Artifact describes a stored audio file.
type Artifact struct {
	ID        string
	Path      string
	Format    string
	CreatedAt time.Time
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Scanned int
	Removed []string
	Failed  int
}

// Store manages artifacts under a single directory.
type Store struct {
	dir   string
	log   *slog.Logger
	clock func() time.Time
	newID func() uuid.UUID
}

// Open prepares dir for artifact storage, creating it when missing.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("audio dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &Store{
		dir:   dir,
		log:   log.With(slog.String("component", "audio-store")),
		clock: time.Now,
		newID: uuid.New,
	}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// Save writes data to a file named after a fresh identifier.
func (s *Store) Save(data []byte) (Artifact, error) {
	id := s.newID().String()
	path := s.pathFor(id)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions)
	if err != nil {
		return Artifact{}, fmt.Errorf("create audio file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(path)
		return Artifact{}, fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return Artifact{}, fmt.Errorf("close audio file: %w", err)
	}

	s.log.Debug("audio artifact stored", slog.String("audio_id", id), slog.Int("bytes", len(data)))
	return Artifact{ID: id, Path: path, Format: FormatMP3, CreatedAt: s.clock()}, nil
}

// Resolve maps id to the path of an existing artifact.
func (s *Store) Resolve(id string) (string, error) {
	canonical, ok := canonicalID(id)
	if !ok {
		return "", ErrNotFound
	}
	path := s.pathFor(canonical)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("stat audio file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// Delete removes the artifact. A missing file reports ErrNotFound.
func (s *Store) Delete(id string) error {
	canonical, ok := canonicalID(id)
	if !ok {
		return ErrNotFound
	}
	if err := os.Remove(s.pathFor(canonical)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove audio file: %w", err)
	}
	s.log.Debug("audio artifact deleted", slog.String("audio_id", canonical))
	return nil
}

// Sweep removes artifacts whose modification time is more than maxAge ago.
// Individual failures are logged and skipped.
func (s *Store) Sweep(maxAge time.Duration) (SweepResult, error) {
	var result SweepResult
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return result, fmt.Errorf("read audio dir: %w", err)
	}

	now := s.clock()
	for _, entry := range entries {
		name := entry.Name()
		id, ok := artifactIDFromName(name)
		if !ok || entry.IsDir() {
			continue
		}
		result.Scanned++

		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				result.Failed++
				s.log.Warn("failed to stat audio file", slog.String("file", name), slog.String("error", err.Error()))
			}
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				result.Failed++
				s.log.Warn("failed to remove old audio file", slog.String("file", name), slog.String("error", err.Error()))
			}
			continue
		}
		result.Removed = append(result.Removed, id)
		s.log.Info("removed old audio file", slog.String("file", name))
	}
	return result, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
// onSweep, when non-nil, observes each completed pass.
func (s *Store) Run(ctx context.Context, interval, maxAge time.Duration, onSweep func(SweepResult)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := s.Sweep(maxAge)
		if err != nil {
			s.log.Warn("audio sweep failed", slog.String("error", err.Error()))
		} else if onSweep != nil {
			onSweep(result)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, filePrefix+id+fileExtension)
}

// canonicalID accepts only UUIDs so caller input never shapes the path.
func canonicalID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	canonical := parsed.String()
	if canonical != strings.ToLower(id) {
		return "", false
	}
	return canonical, true
}

func artifactIDFromName(name string) (string, bool) {
	if !strings.HasPrefix(name, filePrefix) {
		return "", false
	}
	for _, ext := range sweptExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ext), true
		}
	}
	return "", false
}
