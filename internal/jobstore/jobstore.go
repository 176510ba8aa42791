// Package jobstore remembers the print jobs submitted through the proxy so
// that status, cancel and download requests can be checked and answered
// with what was submitted.
package jobstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("print job not found")

const (
	StateSubmitted = "submitted"
	StateFinished  = "finished"
	StateError     = "error"
	StateCancelled = "cancelled"
)

type Record struct {
	Ref         string    `json:"ref"`
	Layout      string    `json:"layout"`
	Format      string    `json:"format"`
	State       string    `json:"state"`
	Error       string    `json:"error,omitempty"`
	DownloadURL string    `json:"downloadURL,omitempty"`
	RequestID   string    `json:"requestId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Terminal reports whether the job can no longer change state.
func (r Record) Terminal() bool {
	return r.State == StateFinished || r.State == StateError || r.State == StateCancelled
}

type Store interface {
	// Put creates or replaces the record of r.Ref.
	Put(ctx context.Context, r Record) error
	// Get returns ErrNotFound for unknown or expired refs.
	Get(ctx context.Context, ref string) (Record, error)
	// Transition stores r unless the stored record of r.Ref is already
	// terminal, atomically with respect to other Transition calls. It
	// reports whether r was stored. A missing record counts as non-terminal.
	Transition(ctx context.Context, r Record) (bool, error)
	Delete(ctx context.Context, ref string) error
	Ping(ctx context.Context) error
	Close() error
}
