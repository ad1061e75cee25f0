package models

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	accessCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-"
	AccessCodeLength   = 10
)

// NewAccessCode generates the opaque code a family uses to confirm and check in
func NewAccessCode() (string, error) {
	return gonanoid.Generate(accessCodeAlphabet, AccessCodeLength)
}
