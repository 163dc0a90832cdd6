package match

import (
	"time"

	"github.com/voithos/swiftcode/internal/models"
)

// TimeRemaining returns the signed duration until the match's start instant,
// measured against the server-side now. It is negative once the race has
// begun and zero when no start instant is scheduled.
//
// The lock cutoff and the start transition both use this computation, so the
// join window can never close after the race has started. Client clocks are
// only ever used for interpolation, never for state decisions.
func TimeRemaining(m *models.Match, now time.Time) time.Duration {
	if m.StartTime == nil {
		return 0
	}
	return m.StartTime.Sub(now)
}
