package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/voithos/swiftcode/internal/events"
	"github.com/voithos/swiftcode/internal/models"
	"github.com/voithos/swiftcode/internal/progress"
	"github.com/voithos/swiftcode/internal/scoring"
	"github.com/voithos/swiftcode/internal/store"
)

type stubExercises struct{}

func (stubExercises) Exercise(ctx context.Context, lang string) (*models.Exercise, error) {
	return &models.Exercise{
		ID:          "ex-1",
		Lang:        lang,
		ProjectName: "demo",
		Typeable:    "hello world",
	}, nil
}

// eventLog captures bus events in publish order.
type eventLog struct {
	mu  sync.Mutex
	evs []events.Event
}

func (l *eventLog) record(ev events.Event) {
	l.mu.Lock()
	l.evs = append(l.evs, ev)
	l.mu.Unlock()
}

func (l *eventLog) topics() []events.Topic {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Topic, len(l.evs))
	for i, ev := range l.evs {
		out[i] = ev.Topic
	}
	return out
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.evs)
}

func newTestCoordinator(t *testing.T) (*Coordinator, *clockwork.FakeClock, *eventLog) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(baseTime)
	bus := events.NewBus()
	mem := store.NewMemory()
	coord := NewCoordinator(testRaceConfig(), clock, bus, mem, scoring.NewEngine(mem), stubExercises{})

	lg := &eventLog{}
	cancel := bus.Subscribe(lg.record,
		events.TopicMatchCreated, events.TopicMatchUpdated, events.TopicMatchRemoved)
	t.Cleanup(cancel)
	return coord, clock, lg
}

func TestCreateAndJoinMultiplayer(t *testing.T) {
	coord, _, lg := newTestCoordinator(t)
	ctx := context.Background()

	m, err := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"})
	if err != nil {
		t.Fatalf("CreateAndJoin: %v", err)
	}
	if m.State != models.MatchStateWaiting {
		t.Fatalf("state = %s, want WAITING", m.State)
	}
	if !m.IsJoinable || !m.IsViewable {
		t.Fatal("multiplayer match should be joinable and viewable")
	}
	if m.NumPlayers != 1 || !m.HasPlayer("p1") {
		t.Fatalf("roster = %v, want [p1]", m.Players)
	}
	if cur, ok := coord.Current("p1"); !ok || cur.ID != m.ID {
		t.Fatal("creator has no current match")
	}
	if got := lg.topics(); len(got) != 1 || got[0] != events.TopicMatchCreated {
		t.Fatalf("topics = %v, want [match:created]", got)
	}
}

func TestCreateAndJoinSolo(t *testing.T) {
	coord, clock, _ := newTestCoordinator(t)
	ctx := context.Background()

	m, err := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go", SinglePlayer: true})
	if err != nil {
		t.Fatalf("CreateAndJoin: %v", err)
	}
	if m.State != models.MatchStateStarting {
		t.Fatalf("state = %s, want STARTING (solo countdown begins immediately)", m.State)
	}
	if m.MaxPlayers != 1 {
		t.Fatalf("MaxPlayers = %d, want 1", m.MaxPlayers)
	}
	if m.IsJoinable || m.IsViewable {
		t.Fatal("solo match must be private")
	}
	want := clock.Now().Add(testRaceConfig().SoloWait)
	if m.StartTime == nil || !m.StartTime.Equal(want) {
		t.Fatalf("StartTime = %v, want %v", m.StartTime, want)
	}
}

func TestCreateAndJoinWhileInMatch(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"}); err != nil {
		t.Fatalf("CreateAndJoin: %v", err)
	}
	if _, err := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"}); !errors.Is(err, ErrAlreadyInMatch) {
		t.Fatalf("second create = %v, want ErrAlreadyInMatch", err)
	}
}

func TestJoinStartsCountdown(t *testing.T) {
	coord, clock, _ := newTestCoordinator(t)
	ctx := context.Background()

	m, _ := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"})
	joined, err := coord.Join(ctx, m.ID, "p2", "Bea")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if joined.State != models.MatchStateStarting {
		t.Fatalf("state = %s, want STARTING at minimum occupancy", joined.State)
	}
	want := clock.Now().Add(testRaceConfig().MultiWait)
	if joined.StartTime == nil || !joined.StartTime.Equal(want) {
		t.Fatalf("StartTime = %v, want %v", joined.StartTime, want)
	}
}

func TestJoinErrors(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	m, _ := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"})

	if _, err := coord.Join(ctx, m.ID, "p1", "Ada"); !errors.Is(err, ErrAlreadyInMatch) {
		t.Fatalf("rejoin = %v, want ErrAlreadyInMatch", err)
	}

	unknown := m.ID
	unknown[0] ^= 0xff
	if _, err := coord.Join(ctx, unknown, "p2", "Bea"); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("unknown match = %v, want ErrMatchNotFound", err)
	}

	for i := 2; i <= 4; i++ {
		id := fmt.Sprintf("p%d", i)
		if _, err := coord.Join(ctx, m.ID, id, id); err != nil {
			t.Fatalf("Join %s: %v", id, err)
		}
	}
	if _, err := coord.Join(ctx, m.ID, "p5", "p5"); !errors.Is(err, ErrNotJoinable) {
		t.Fatalf("join full = %v, want ErrNotJoinable", err)
	}
}

func TestJoinCapacityRace(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	m, _ := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"})
	for i := 2; i <= 4; i++ {
		id := fmt.Sprintf("p%d", i)
		coord.Join(ctx, m.ID, id, id)
	}

	// Force the stale-flag window a concurrent joiner can observe.
	coord.mu.RLock()
	e := coord.live[m.ID]
	coord.mu.RUnlock()
	e.mu.Lock()
	e.m.IsJoinable = true
	e.mu.Unlock()

	if _, err := coord.Join(ctx, m.ID, "p5", "p5"); !errors.Is(err, ErrCapacityRace) {
		t.Fatalf("join full-but-joinable = %v, want ErrCapacityRace", err)
	}
}

func TestConcurrentJoinStorm(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	cfg := testRaceConfig()

	m, _ := coord.CreateAndJoin(ctx, "creator", "Creator", CreateOptions{Lang: "go"})

	const contenders = 20
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("racer-%d", i)
			_, errs[i] = coord.Join(ctx, m.ID, id, id)
		}(i)
	}
	wg.Wait()

	var admitted int
	for i, err := range errs {
		id := fmt.Sprintf("racer-%d", i)
		cur, inMatch := coord.Current(id)
		if err == nil {
			admitted++
			if !inMatch || cur.ID != m.ID {
				t.Errorf("%s joined but has no current match", id)
			}
		} else {
			if inMatch {
				t.Errorf("%s was rejected (%v) but has a current match", id, err)
			}
			if !errors.Is(err, ErrNotJoinable) && !errors.Is(err, ErrCapacityRace) {
				t.Errorf("%s unexpected error %v", id, err)
			}
		}
	}
	if admitted != cfg.MaxPlayers-1 {
		t.Fatalf("admitted %d contenders, want %d", admitted, cfg.MaxPlayers-1)
	}

	final, err := coord.Get(m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.NumPlayers != cfg.MaxPlayers || len(final.Players) != cfg.MaxPlayers {
		t.Fatalf("occupancy %d / roster %d, want %d", final.NumPlayers, len(final.Players), cfg.MaxPlayers)
	}
	if final.IsJoinable {
		t.Fatal("full match still joinable")
	}
}

func TestLeaveIdleIsNoop(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	m, err := coord.Leave(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if m != nil {
		t.Fatalf("Leave returned %v for an idle player", m)
	}
}

func TestLeaveAbortsCountdown(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	m, _ := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"})
	coord.Join(ctx, m.ID, "p2", "Bea")

	left, err := coord.Leave(ctx, "p2")
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if left.State != models.MatchStateWaiting {
		t.Fatalf("state = %s, want WAITING after countdown abort", left.State)
	}
	if left.StartTime != nil {
		t.Fatalf("StartTime = %v, want nil", left.StartTime)
	}
	if _, ok := coord.Current("p2"); ok {
		t.Fatal("p2 still has a current match after leaving")
	}
}

func TestLeaveLastPlayerRemovesMatch(t *testing.T) {
	coord, _, lg := newTestCoordinator(t)
	ctx := context.Background()

	m, _ := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"})
	left, err := coord.Leave(ctx, "p1")
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if left.State != models.MatchStateComplete {
		t.Fatalf("state = %s, want COMPLETE", left.State)
	}
	if _, err := coord.Get(m.ID); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("Get after removal = %v, want ErrMatchNotFound", err)
	}

	topics := lg.topics()
	if len(topics) < 2 {
		t.Fatalf("topics = %v, want trailing update and removal", topics)
	}
	if topics[len(topics)-2] != events.TopicMatchUpdated || topics[len(topics)-1] != events.TopicMatchRemoved {
		t.Fatalf("topics = %v, want ...updated, removed", topics)
	}
}

func TestTickStartsRace(t *testing.T) {
	coord, clock, _ := newTestCoordinator(t)
	ctx := context.Background()

	m, _ := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"})
	coord.Join(ctx, m.ID, "p2", "Bea")

	clock.Advance(testRaceConfig().MultiWait)
	coord.Tick(clock.Now())

	got, err := coord.Get(m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != models.MatchStateRunning {
		t.Fatalf("state = %s, want RUNNING", got.State)
	}
	if len(got.StartingPlayers) != 2 {
		t.Fatalf("StartingPlayers = %v, want both racers", got.StartingPlayers)
	}
}

func TestTickIdempotent(t *testing.T) {
	coord, clock, lg := newTestCoordinator(t)
	ctx := context.Background()

	m, _ := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"})
	coord.Join(ctx, m.ID, "p2", "Bea")
	clock.Advance(testRaceConfig().MultiWait)
	coord.Tick(clock.Now())

	before := lg.len()
	coord.Tick(clock.Now())
	coord.Tick(clock.Now())
	if got := lg.len(); got != before {
		t.Fatalf("duplicate ticks published %d extra events", got-before)
	}
}

func TestNextDeadlineAcrossMatches(t *testing.T) {
	coord, clock, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, ok := coord.NextDeadline(); ok {
		t.Fatal("empty coordinator reported a deadline")
	}

	coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"})
	coord.CreateAndJoin(ctx, "p2", "Bea", CreateOptions{Lang: "go", SinglePlayer: true})

	d, ok := coord.NextDeadline()
	if !ok {
		t.Fatal("no deadline with a solo countdown live")
	}
	if want := clock.Now().Add(testRaceConfig().SoloWait); !d.Equal(want) {
		t.Fatalf("deadline = %v, want solo start %v", d, want)
	}
}

func completedCounters() progress.Counters {
	return progress.Counters{Pos: 11, Length: 11, Keystrokes: 14, Mistakes: 1}
}

func TestCompleteRaceSolo(t *testing.T) {
	coord, clock, _ := newTestCoordinator(t)
	ctx := context.Background()
	cfg := testRaceConfig()

	m, _ := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go", SinglePlayer: true})
	clock.Advance(cfg.SoloWait)
	coord.Tick(clock.Now())
	clock.Advance(30 * time.Second)

	out, err := coord.CompleteRace(ctx, "p1", completedCounters())
	if err != nil {
		t.Fatalf("CompleteRace: %v", err)
	}
	if out.Won {
		t.Fatal("solo run marked as a win")
	}
	if out.Stats.TimeMS != 30000 {
		t.Fatalf("TimeMS = %d, want 30000", out.Stats.TimeMS)
	}
	if out.Match.State != models.MatchStateComplete {
		t.Fatalf("state = %s, want COMPLETE after sole racer finished", out.Match.State)
	}
	if _, err := coord.Get(m.ID); !errors.Is(err, ErrMatchNotFound) {
		t.Fatal("finished solo match still live")
	}
	if _, ok := coord.Current("p1"); ok {
		t.Fatal("finished racer still bound to a match")
	}
}

func TestCompleteRaceMultiplayerWinner(t *testing.T) {
	coord, clock, _ := newTestCoordinator(t)
	ctx := context.Background()
	cfg := testRaceConfig()

	m, _ := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"})
	coord.Join(ctx, m.ID, "p2", "Bea")
	clock.Advance(cfg.MultiWait)
	coord.Tick(clock.Now())
	clock.Advance(20 * time.Second)

	first, err := coord.CompleteRace(ctx, "p1", completedCounters())
	if err != nil {
		t.Fatalf("CompleteRace p1: %v", err)
	}
	if !first.Won {
		t.Fatal("first finisher not marked as winner")
	}
	if first.Match.Winner != "p1" || first.Match.WinnerTime != 20*time.Second {
		t.Fatalf("winner = %q after %v, want p1 after 20s", first.Match.Winner, first.Match.WinnerTime)
	}

	if _, err := coord.CompleteRace(ctx, "p1", completedCounters()); !errors.Is(err, ErrAlreadyFinished) {
		t.Fatalf("double finish = %v, want ErrAlreadyFinished", err)
	}

	clock.Advance(10 * time.Second)
	second, err := coord.CompleteRace(ctx, "p2", completedCounters())
	if err != nil {
		t.Fatalf("CompleteRace p2: %v", err)
	}
	if second.Won {
		t.Fatal("second finisher marked as winner")
	}
	if second.Match.State != models.MatchStateComplete {
		t.Fatalf("state = %s, want COMPLETE after all finished", second.Match.State)
	}
	if _, err := coord.Get(m.ID); !errors.Is(err, ErrMatchNotFound) {
		t.Fatal("finished match still live")
	}
}

func TestCompleteRaceErrors(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := coord.CompleteRace(ctx, "ghost", completedCounters()); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("unknown player = %v, want ErrPlayerNotFound", err)
	}

	coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"})
	if _, err := coord.CompleteRace(ctx, "p1", completedCounters()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("finish before start = %v, want ErrNotRunning", err)
	}
}

func TestLobbyMatchesHidesPrivate(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	open, _ := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go"})
	coord.CreateAndJoin(ctx, "p2", "Bea", CreateOptions{Lang: "go", SinglePlayer: true})

	lobby := coord.LobbyMatches()
	if len(lobby) != 1 || lobby[0].ID != open.ID {
		t.Fatalf("lobby = %v, want only the open match", lobby)
	}
}

func TestRoomHandshake(t *testing.T) {
	coord, clock, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, _, _, err := coord.Room("ghost"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("Room for idle player = %v, want ErrPlayerNotFound", err)
	}

	m, _ := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go", SinglePlayer: true})
	clock.Advance(2 * time.Second)
	got, ex, remaining, err := coord.Room("p1")
	if err != nil {
		t.Fatalf("Room: %v", err)
	}
	if got.ID != m.ID {
		t.Fatal("Room returned the wrong match")
	}
	if ex.Typeable == "" {
		t.Fatal("Room returned no exercise text")
	}
	if want := testRaceConfig().SoloWait - 2*time.Second; remaining != want {
		t.Fatalf("remaining = %v, want %v", remaining, want)
	}
}
