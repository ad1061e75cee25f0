package models

import (
	"fmt"
	"strings"
)

// ConfirmationStatus represents the RSVP answer recorded for a guest
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "pending"
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusDeclined  ConfirmationStatus = "declined"
)

var statusAliases = map[string]ConfirmationStatus{
	"pending":         StatusPending,
	"pendiente":       StatusPending,
	"confirmed":       StatusConfirmed,
	"confirmado":      StatusConfirmed,
	"will attend":     StatusConfirmed,
	"yes":             StatusConfirmed,
	"si":              StatusConfirmed,
	"sí":              StatusConfirmed,
	"asistire":        StatusConfirmed,
	"asistiré":        StatusConfirmed,
	"declined":        StatusDeclined,
	"rechazado":       StatusDeclined,
	"will not attend": StatusDeclined,
	"no":              StatusDeclined,
	"no asistire":     StatusDeclined,
	"no asistiré":     StatusDeclined,
}

// ParseConfirmationStatus maps a submitted answer onto a status.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseConfirmationStatus(raw string) (ConfirmationStatus, error) {
	key := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if status, ok := statusAliases[key]; ok {
		return status, nil
	}
	return "", fmt.Errorf("unknown confirmation status %q", raw)
}

// Answered reports whether the status is a final yes/no answer
func (s ConfirmationStatus) Answered() bool {
	return s == StatusConfirmed || s == StatusDeclined
}

func (s ConfirmationStatus) Valid() bool {
	return s == StatusPending || s.Answered()
}
