package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"wedding-rsvp/internal/handler"
	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type registerResponse struct {
	Message    string        `json:"message"`
	AccessCode string        `json:"accessCode"`
	Guest      *models.Guest `json:"guest"`
}

type confirmResponse struct {
	Message string        `json:"message"`
	Guest   *models.Guest `json:"guest"`
}

func (s *Server) registerGuest(w http.ResponseWriter, r *http.Request) {
	var req handler.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	guest, err := s.h.Guests.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{
		Message:    "Guest registered",
		AccessCode: guest.AccessCode,
		Guest:      guest,
	})
}

func (s *Server) roster(w http.ResponseWriter, r *http.Request) {
	roster, err := s.h.Guests.Roster(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (s *Server) fullList(w http.ResponseWriter, r *http.Request) {
	guests, err := s.h.Guests.FullList(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, guests)
}

func (s *Server) getGuest(w http.ResponseWriter, r *http.Request) {
	guest, err := s.h.Guests.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, guest)
}

func (s *Server) updateGuest(w http.ResponseWriter, r *http.Request) {
	var req handler.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	guest, err := s.h.Guests.Update(r.Context(), chi.URLParam(r, "code"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, guest)
}

func (s *Server) deleteGuest(w http.ResponseWriter, r *http.Request) {
	if err := s.h.Guests.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	var req handler.ConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	guest, err := s.h.RSVP.Confirm(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Message: "Confirmation updated", Guest: guest})
}

func (s *Server) checkIn(w http.ResponseWriter, r *http.Request) {
	res, err := s.h.CheckIn.Scan(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) registerToken(w http.ResponseWriter, r *http.Request) {
	var req handler.TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.h.Tokens.Register(r.Context(), req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Registered {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	summary, err := s.h.Stats.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// writeError maps handler errors onto statuses. Anything unrecognised is a
// storage failure and is hidden behind a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"
	switch {
	case errors.Is(err, handler.ErrInvalidInput), errors.Is(err, storage.ErrEmptyToken):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, handler.ErrInvalidCode):
		status, msg = http.StatusNotFound, handler.ErrInvalidCode.Error()
	case errors.Is(err, handler.ErrGuestNotFound):
		status, msg = http.StatusNotFound, handler.ErrGuestNotFound.Error()
	}

	log := hlog.FromRequest(r)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	} else {
		log.Warn().Err(err).Int("status", status).Msg("Request rejected")
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", handler.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
