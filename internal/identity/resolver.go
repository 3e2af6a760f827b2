// Package identity merges anonymous visitor identifiers with known
// user identifiers: upsert a profile record and backfill user_id onto
// prior anonymous events.
package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clicklab/analytics/internal/models"
)

// Store is the storage collaborator contract. BackfillUserID must be
// scoped to rows whose user_id is still empty: an event already
// attributed to a different user keeps it (first identify wins).
// Implementations must use parameterized queries; identifier strings
// are untrusted input.
type Store interface {
	UpsertProfile(ctx context.Context, userID, anonymousID string, traits map[string]any) error
	BackfillUserID(ctx context.Context, userID, anonymousID string) error
}

type Resolver struct {
	store Store
	log   *slog.Logger
}

func NewResolver(store Store, log *slog.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

// Identify upserts the (user_id, anonymous_id) association and stamps
// user_id onto previously anonymous events. Idempotent: repeating the
// same pair neither duplicates the association nor touches rows that
// already carry a user_id.
func (r *Resolver) Identify(ctx context.Context, ident models.UserIdentification) error {
	if err := r.store.UpsertProfile(ctx, ident.UserID, ident.AnonymousID, ident.Traits); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	if err := r.store.BackfillUserID(ctx, ident.UserID, ident.AnonymousID); err != nil {
		return fmt.Errorf("backfill user_id: %w", err)
	}
	r.log.Info("user identified",
		slog.String("user_id", ident.UserID),
		slog.String("anonymous_id", ident.AnonymousID))
	return nil
}
