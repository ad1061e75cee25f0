package models

import (
	"time"

	"github.com/google/uuid"
)

// Guest represents one invited family and its RSVP state
type Guest struct {
	ID                 uuid.UUID          `json:"id" db:"id"`
	Family             string             `json:"family" db:"family"`
	InvitedCount       int                `json:"invitedCount" db:"invited_count"`
	ConfirmedCount     int                `json:"confirmedCount" db:"confirmed_count"`
	TableNumber        string             `json:"tableNumber" db:"table_number"`
	ConfirmationStatus ConfirmationStatus `json:"confirmationStatus" db:"confirmation_status"`
	AccessCode         string             `json:"accessCode" db:"access_code"`
	CheckInTime        *time.Time         `json:"checkInTime,omitempty" db:"check_in_time"`
	CreatedAt          time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time          `json:"updatedAt" db:"updated_at"`
}

// CheckedIn reports whether the guest has been scanned at the event
func (g *Guest) CheckedIn() bool {
	return g.CheckInTime != nil
}

// NewGuest builds a freshly registered guest in the pending state
func NewGuest(family string, invitedCount int, tableNumber, accessCode string, now time.Time) *Guest {
	return &Guest{
		ID:                 uuid.New(),
		Family:             family,
		InvitedCount:       invitedCount,
		ConfirmedCount:     0,
		TableNumber:        tableNumber,
		ConfirmationStatus: StatusPending,
		AccessCode:         accessCode,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// RosterEntry is the public summary row of the invitation list
type RosterEntry struct {
	AccessCode   string `json:"accessCode"`
	Family       string `json:"family"`
	InvitedCount int    `json:"invitedCount"`
}

// Stats holds the live attendance counters
type Stats struct {
	TotalInvited   int `json:"totalInvited"`
	TotalCheckedIn int `json:"totalCheckedIn"`
}
