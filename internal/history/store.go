// Package history persists completed-report summaries. One contract,
// two interchangeable backends: the remote store for authenticated
// sessions and a session-scoped ephemeral store for guests.
package history

import (
	"context"
	"errors"
	"log"

	"github.com/signalnews/pulse-gateway/internal/domain"
	"github.com/signalnews/pulse-gateway/internal/session"
)

var (
	ErrNotFound  = errors.New("history record not found")
	ErrNoSession = errors.New("no session identity on request")
)

// Store is the persistence contract both backends implement. The owner
// key is a user id for the remote store and a guest session id for the
// ephemeral store.
type Store interface {
	Save(ctx context.Context, owner string, record domain.HistoryRecord) error
	List(ctx context.Context, owner string) ([]domain.HistoryRecord, error)
	Delete(ctx context.Context, owner string, jobID string) error
}

// Adapter routes every operation to exactly one backend based on the
// session identity carried in the context. The decision is re-evaluated
// at the start of each call; a session established mid-flow affects only
// subsequent operations.
type Adapter struct {
	remote Store
	guest  Store
	logger *log.Logger
}

func NewAdapter(remote, guest Store, logger *log.Logger) *Adapter {
	return &Adapter{remote: remote, guest: guest, logger: logger}
}

// Save persists the record through the active backend. Callers treat
// this as fire-and-forget: the report was already delivered, so a
// returned error is for logging, never for surfacing to the user.
func (a *Adapter) Save(ctx context.Context, record domain.HistoryRecord) error {
	store, owner, err := a.resolve(ctx)
	if err != nil {
		if a.logger != nil {
			a.logger.Printf("history save skipped job_id=%s: %v", record.JobID, err)
		}
		return err
	}
	return store.Save(ctx, owner, record)
}

// List returns the active backend's records. Callers sort by timestamp
// descending before display; no order is guaranteed here.
func (a *Adapter) List(ctx context.Context) ([]domain.HistoryRecord, error) {
	store, owner, err := a.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return store.List(ctx, owner)
}

// Delete removes one record. For guests a missing job id is a silent
// no-op; the remote store reports ErrNotFound.
func (a *Adapter) Delete(ctx context.Context, jobID string) error {
	store, owner, err := a.resolve(ctx)
	if err != nil {
		return err
	}
	return store.Delete(ctx, owner, jobID)
}

func (a *Adapter) resolve(ctx context.Context) (Store, string, error) {
	identity := session.FromContext(ctx)
	if identity.Authenticated() {
		return a.remote, identity.UserID, nil
	}
	if identity.GuestID != "" {
		return a.guest, identity.GuestID, nil
	}
	return nil, "", ErrNoSession
}
