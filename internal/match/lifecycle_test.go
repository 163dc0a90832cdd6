package match

import (
	"testing"
	"time"

	"github.com/voithos/swiftcode/internal/config"
	"github.com/voithos/swiftcode/internal/models"
)

func testRaceConfig() config.RaceConfig {
	return config.RaceConfig{
		MaxPlayers:        4,
		MinPlayersToStart: 2,
		SoloWait:          6 * time.Second,
		MultiWait:         16 * time.Second,
		LockCutoff:        5 * time.Second,
	}
}

var baseTime = time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)

func multiMatch(numPlayers int) *models.Match {
	m := &models.Match{
		State:      models.MatchStateWaiting,
		MaxPlayers: 4,
		IsJoinable: true,
		IsViewable: true,
		CreatedAt:  baseTime,
	}
	for i := 0; i < numPlayers; i++ {
		m.Players = append(m.Players, string(rune('a'+i)))
		m.PlayerNames = append(m.PlayerNames, string(rune('A'+i)))
	}
	m.NumPlayers = numPlayers
	return m
}

func TestAdvanceWaitingBelowMinimum(t *testing.T) {
	m := multiMatch(1)
	if advance(m, testRaceConfig(), baseTime) {
		t.Fatal("advance reported a change for a lone waiting player")
	}
	if m.State != models.MatchStateWaiting || m.StartTime != nil {
		t.Fatalf("state = %s, startTime = %v; want WAITING with no start", m.State, m.StartTime)
	}
}

func TestAdvanceWaitingToStarting(t *testing.T) {
	cfg := testRaceConfig()
	m := multiMatch(2)
	if !advance(m, cfg, baseTime) {
		t.Fatal("advance reported no change at minimum occupancy")
	}
	if m.State != models.MatchStateStarting {
		t.Fatalf("state = %s, want STARTING", m.State)
	}
	want := baseTime.Add(cfg.MultiWait)
	if m.StartTime == nil || !m.StartTime.Equal(want) {
		t.Fatalf("StartTime = %v, want %v", m.StartTime, want)
	}
	if !m.IsJoinable {
		t.Fatal("match locked before the cutoff")
	}
}

func TestAdvanceSoloStartsImmediately(t *testing.T) {
	cfg := testRaceConfig()
	m := &models.Match{
		State:          models.MatchStateWaiting,
		MaxPlayers:     1,
		NumPlayers:     1,
		Players:        []string{"solo"},
		PlayerNames:    []string{"Solo"},
		IsSinglePlayer: true,
	}
	advance(m, cfg, baseTime)
	if m.State != models.MatchStateStarting {
		t.Fatalf("state = %s, want STARTING", m.State)
	}
	want := baseTime.Add(cfg.SoloWait)
	if m.StartTime == nil || !m.StartTime.Equal(want) {
		t.Fatalf("StartTime = %v, want %v", m.StartTime, want)
	}
}

func TestAdvanceStartingBackToWaiting(t *testing.T) {
	cfg := testRaceConfig()
	m := multiMatch(2)
	advance(m, cfg, baseTime)

	// Second player leaves well before the start instant.
	m.Players = m.Players[:1]
	m.PlayerNames = m.PlayerNames[:1]
	m.NumPlayers = 1
	advance(m, cfg, baseTime.Add(2*time.Second))

	if m.State != models.MatchStateWaiting {
		t.Fatalf("state = %s, want WAITING", m.State)
	}
	if m.StartTime != nil {
		t.Fatalf("StartTime = %v, want nil after countdown abort", m.StartTime)
	}
	if !m.IsJoinable {
		t.Fatal("aborted match should reopen for joins")
	}
}

func TestAdvanceLockCutoff(t *testing.T) {
	cfg := testRaceConfig()
	m := multiMatch(2)
	advance(m, cfg, baseTime)

	// Exactly at the cutoff the window is still open.
	atCutoff := m.StartTime.Add(-cfg.LockCutoff)
	advance(m, cfg, atCutoff)
	if !m.IsJoinable {
		t.Fatal("locked exactly at the cutoff; lock should be strictly inside it")
	}

	advance(m, cfg, atCutoff.Add(time.Second))
	if m.IsJoinable {
		t.Fatal("join window still open inside the lock cutoff")
	}
	if m.State != models.MatchStateStarting {
		t.Fatalf("state = %s, want STARTING", m.State)
	}
}

func TestAdvanceStartingToRunning(t *testing.T) {
	cfg := testRaceConfig()
	m := multiMatch(3)
	advance(m, cfg, baseTime)
	start := *m.StartTime

	advance(m, cfg, start)
	if m.State != models.MatchStateRunning {
		t.Fatalf("state = %s, want RUNNING", m.State)
	}
	if m.IsJoinable {
		t.Fatal("running match still joinable")
	}
	if len(m.StartingPlayers) != 3 {
		t.Fatalf("StartingPlayers = %v, want snapshot of 3", m.StartingPlayers)
	}
}

func TestAdvanceLateWakeConverges(t *testing.T) {
	cfg := testRaceConfig()
	m := multiMatch(2)
	advance(m, cfg, baseTime)
	start := *m.StartTime

	// A single evaluation long after the deadline lands directly in
	// RUNNING; the lock step is folded into the same pass.
	advance(m, cfg, start.Add(time.Minute))
	if m.State != models.MatchStateRunning {
		t.Fatalf("state = %s, want RUNNING", m.State)
	}
	if !m.StartTime.Equal(start) {
		t.Fatalf("StartTime moved to %v, want %v", m.StartTime, start)
	}
}

func TestAdvanceRunningToComplete(t *testing.T) {
	cfg := testRaceConfig()
	m := multiMatch(2)
	advance(m, cfg, baseTime)
	advance(m, cfg, m.StartTime.Add(time.Second))

	m.Players = nil
	m.PlayerNames = nil
	m.NumPlayers = 0
	advance(m, cfg, m.StartTime.Add(2*time.Second))
	if m.State != models.MatchStateComplete {
		t.Fatalf("state = %s, want COMPLETE", m.State)
	}
	if m.IsViewable {
		t.Fatal("complete match still viewable")
	}
}

func TestAdvanceIdempotent(t *testing.T) {
	cfg := testRaceConfig()
	m := multiMatch(2)
	now := baseTime
	advance(m, cfg, now)
	if advance(m, cfg, now) {
		t.Fatal("re-evaluating at the same instant reported a change")
	}
}

func TestNextDeadline(t *testing.T) {
	cfg := testRaceConfig()

	m := multiMatch(1)
	if _, ok := nextDeadline(m, cfg); ok {
		t.Fatal("waiting match reported a deadline")
	}

	m = multiMatch(2)
	advance(m, cfg, baseTime)
	d, ok := nextDeadline(m, cfg)
	if !ok {
		t.Fatal("starting match reported no deadline")
	}
	if want := m.StartTime.Add(-cfg.LockCutoff); !d.Equal(want) {
		t.Fatalf("deadline = %v, want lock instant %v", d, want)
	}

	m.IsJoinable = false
	d, _ = nextDeadline(m, cfg)
	if !d.Equal(*m.StartTime) {
		t.Fatalf("deadline = %v, want start instant %v", d, *m.StartTime)
	}
}

func TestTimeRemaining(t *testing.T) {
	m := &models.Match{}
	if got := TimeRemaining(m, baseTime); got != 0 {
		t.Fatalf("TimeRemaining without start = %v, want 0", got)
	}

	start := baseTime.Add(10 * time.Second)
	m.StartTime = &start
	if got := TimeRemaining(m, baseTime); got != 10*time.Second {
		t.Fatalf("TimeRemaining = %v, want 10s", got)
	}
	if got := TimeRemaining(m, start.Add(3*time.Second)); got != -3*time.Second {
		t.Fatalf("TimeRemaining past start = %v, want -3s", got)
	}
}
