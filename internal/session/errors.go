package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized       = errors.New("session not initialized")
	ErrAlreadyBootstrapping = errors.New("bootstrap already in progress")
	ErrNoSubAccount         = errors.New("no sub-account")
	ErrProvisionTimeout     = errors.New("account provisioning gave up")
)

type NoSubAccountError struct {
	L1Address string
}

func (e *NoSubAccountError) Error() string {
	return fmt.Sprintf("no sub-account for %s", e.L1Address)
}

func (e *NoSubAccountError) Unwrap() error { return ErrNoSubAccount }
