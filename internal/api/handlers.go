package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/loqalabs/sleep-assistant/internal/audiostore"
	"github.com/loqalabs/sleep-assistant/internal/protocol"
	"github.com/loqalabs/sleep-assistant/internal/tts"
)

const (
	detailTTSNotReady  = "TTS service is not initialized yet. Please wait and try again."
	detailChatNotReady = "OpenAI service is not initialized yet. Please wait and try again."
	detailAudioMissing = "Audio file not found"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	speech, chat := s.ready.SpeechReady(), s.ready.ChatReady()
	resp := HealthResponse{
		Status:            "initializing",
		TTSInitialized:    speech,
		OpenAIInitialized: chat,
	}
	switch {
	case speech && chat:
		resp.Status = "healthy"
		resp.Message = "All services are ready"
	case speech:
		resp.Message = "TTS ready, OpenAI initializing..."
	case chat:
		resp.Message = "OpenAI ready, TTS initializing..."
	default:
		resp.Message = "Services are initializing..."
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req TTSRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == nil {
		unprocessable(w, []string{"text"})
		return
	}
	if !s.ready.SpeechReady() || s.speech == nil {
		writeError(w, http.StatusServiceUnavailable, detailTTSNotReady)
		return
	}
	text := *req.Text
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "Text cannot be empty")
		return
	}
	if limit := s.cfg.TTS.MaxInputChars; utf8.RuneCountInString(text) > limit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Text is too long (max %d characters)", limit))
		return
	}

	result, err := s.speech.Synthesize(r.Context(), text, req.SpeakerName)
	if err != nil {
		writeJSON(w, http.StatusOK, TTSResponse{Success: false, Error: userFacingError(err)})
		return
	}

	s.publish(protocol.SubjectAudioCreated, protocol.AudioEvent{
		AudioID:   result.AudioID,
		Reason:    protocol.ReasonSynthesized,
		Voice:     result.Voice,
		Timestamp: time.Now().UTC(),
	})

	generation := result.GenerationTime.Seconds()
	writeJSON(w, http.StatusOK, TTSResponse{
		Success:        true,
		AudioID:        result.AudioID,
		AudioURL:       result.AudioURL,
		Duration:       result.Duration,
		GenerationTime: &generation,
	})
}

func userFacingError(err error) string {
	if errors.Is(err, tts.ErrSynthesisFailed) {
		return "Failed to generate audio"
	}
	return err.Error()
}

func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path, err := s.audio.Resolve(id)
	if err != nil {
		s.audioLookupFailed(w, id, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		s.audioLookupFailed(w, id, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.audioLookupFailed(w, id, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="tts_%s.mp3"`, id))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) audioLookupFailed(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, audiostore.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, detailAudioMissing)
		return
	}
	s.logger.Error("failed to serve audio", slog.String("audio_id", id), slogError(err))
	writeError(w, http.StatusInternalServerError, "Failed to serve audio file")
}

func (s *Server) handleDeleteAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.audio.Delete(id)
	switch {
	case err == nil:
		s.publish(protocol.SubjectAudioDeleted, protocol.AudioEvent{
			AudioID:   id,
			Reason:    protocol.ReasonDeleted,
			Timestamp: time.Now().UTC(),
		})
		writeJSON(w, http.StatusOK, AudioDeleteResponse{Success: true, Message: "Audio file deleted"})
	case errors.Is(err, audiostore.ErrNotFound):
		writeJSON(w, http.StatusOK, AudioDeleteResponse{Success: false, Message: detailAudioMissing})
	default:
		s.logger.Error("failed to delete audio", slog.String("audio_id", id), slogError(err))
		writeJSON(w, http.StatusOK, AudioDeleteResponse{Success: false, Message: err.Error()})
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Message == nil {
		unprocessable(w, []string{"message"})
		return
	}
	if !s.ready.ChatReady() || s.coach == nil {
		writeError(w, http.StatusServiceUnavailable, detailChatNotReady)
		return
	}
	if strings.TrimSpace(*req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}

	reply := s.coach.Chat(r.Context(), *req.Message, req.ConversationHistory)
	writeJSON(w, http.StatusOK, ChatResponse{Success: true, Response: reply})
}

func (s *Server) handleRoutine(w http.ResponseWriter, r *http.Request) {
	var req RoutineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Preferences == nil {
		unprocessable(w, []string{"preferences"})
		return
	}
	if !s.ready.ChatReady() || s.coach == nil {
		writeError(w, http.StatusServiceUnavailable, detailChatNotReady)
		return
	}
	if strings.TrimSpace(*req.Preferences) == "" {
		writeError(w, http.StatusBadRequest, "Preferences cannot be empty")
		return
	}

	routine := s.coach.Routine(r.Context(), *req.Preferences)
	writeJSON(w, http.StatusOK, RoutineResponse{Success: true, Routine: routine})
}

func (s *Server) handleChatHealth(w http.ResponseWriter, r *http.Request) {
	if !s.ready.ChatReady() || s.coach == nil {
		writeJSON(w, http.StatusOK, ChatHealthResponse{
			Status:  "not_initialized",
			Message: "OpenAI service is not initialized",
		})
		return
	}
	writeJSON(w, http.StatusOK, s.coach.Health(r.Context()))
}

func (s *Server) handleBreathingSession(w http.ResponseWriter, r *http.Request) {
	var req BreathingSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if missing := req.missing(); len(missing) > 0 {
		unprocessable(w, missing)
		return
	}

	s.logger.Info("breathing session completed",
		slog.String("technique", *req.TechniqueName),
		slog.Int("cycles", *req.CyclesCompleted),
		slog.Float64("duration_seconds", *req.TotalDurationSeconds))

	s.publish(protocol.SubjectBreathingSession, protocol.BreathingSession{
		TechniqueID:          *req.TechniqueID,
		TechniqueName:        *req.TechniqueName,
		CyclesCompleted:      *req.CyclesCompleted,
		TotalDurationSeconds: *req.TotalDurationSeconds,
		SessionDate:          *req.SessionDate,
		ReceivedAt:           time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, BreathingSessionResponse{
		Success: true,
		Message: "Session logged successfully (stateless)",
	})
}

func (s *Server) handleBreathingSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, BreathingSessionsResponse{
		Success:       true,
		Sessions:      []any{},
		TotalSessions: 0,
	})
}

func (s *Server) handleTranscriptionToken(w http.ResponseWriter, r *http.Request) {
	body, err := s.tokens.Token(r.Context())
	if err != nil {
		s.logger.Error("assemblyai token error", slogError(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
