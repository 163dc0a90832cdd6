package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/voithos/swiftcode/internal/models"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// MatchStore persists match outcomes. The in-memory match state is always
// authoritative for gameplay; store failures are logged and surfaced as
// non-fatal warnings, never as race invalidation.
type MatchStore interface {
	LoadMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	SaveMatch(ctx context.Context, m *models.Match) error

	// ResetOpenMatches force-completes every non-complete match, marking it
	// reset. Called once at server startup so no stale joinable matches
	// survive a restart. Returns the number of matches reset.
	ResetOpenMatches(ctx context.Context) (int64, error)
}

// PlayerStore persists player records and cumulative stats.
type PlayerStore interface {
	LoadPlayer(ctx context.Context, id string) (*models.Player, error)
	SavePlayer(ctx context.Context, p *models.Player) error
}

// Store bundles both collaborator interfaces.
type Store interface {
	MatchStore
	PlayerStore
}
