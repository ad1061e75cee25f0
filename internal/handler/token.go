package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"wedding-rsvp/internal/storage"
)

type TokenHandler struct {
	tokens storage.TokenRegistry
	log    zerolog.Logger
}

type TokenRequest struct {
	Token string `json:"token"`
}

// TokenRegistration is false in Registered when the token was already known.
type TokenRegistration struct {
	Registered bool `json:"registered"`
}

func NewTokenHandler(tokens storage.TokenRegistry, log zerolog.Logger) *TokenHandler {
	return &TokenHandler{
		tokens: tokens,
		log:    log.With().Str("component", "Tokens").Logger(),
	}
}

func (h *TokenHandler) Register(ctx context.Context, token string) (TokenRegistration, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenRegistration{}, fmt.Errorf("%w: token is required", ErrInvalidInput)
	}
	inserted, err := h.tokens.RegisterToken(ctx, token)
	if err != nil {
		return TokenRegistration{}, fmt.Errorf("failed to register token: %w", err)
	}
	h.log.Debug().Bool("new", inserted).Msg("Device token registered")
	return TokenRegistration{Registered: inserted}, nil
}
