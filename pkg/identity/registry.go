// Package identity provides the client for the HR personnel registry
// used to verify alumni registrations.
package identity

import (
	"context"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates the registry holds no record for the query.
	// This is a definitive answer, not a transport failure.
	ErrNotFound = fmt.Errorf("personnel record not found")

	// ErrUnavailable indicates the registry could not be reached or did
	// not answer in time. Callers should retry later rather than treat
	// the identity as unverifiable.
	ErrUnavailable = fmt.Errorf("personnel registry unavailable")
)

// Record is a candidate identity returned by the registry
type Record struct {
	StaffNumber string    `json:"staff_number"`
	FullName    string    `json:"full_name"`
	Department  string    `json:"department"`
	ExitDate    time.Time `json:"exit_date"`
}

// Query identifies the person to look up. StaffNumber is preferred when
// both are present.
type Query struct {
	StaffNumber  string
	IDOrPassport string
}

// Registry looks up former-employee records in the HR personnel system
type Registry interface {
	// Lookup returns the matching record, ErrNotFound when the registry
	// definitively has no match, or ErrUnavailable on transport failure.
	Lookup(ctx context.Context, q Query) (*Record, error)
}
