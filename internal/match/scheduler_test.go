package match

import (
	"context"
	"testing"
	"time"

	"github.com/voithos/swiftcode/internal/models"
)

func TestSchedulerFiresStartTransition(t *testing.T) {
	coord, clock, _ := newTestCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go", SinglePlayer: true})
	if err != nil {
		t.Fatalf("CreateAndJoin: %v", err)
	}

	s := NewScheduler(coord, clock)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	// Wait for the scheduler to arm its timer, then step past the start
	// instant.
	clock.BlockUntil(1)
	clock.Advance(testRaceConfig().SoloWait + time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		got, err := coord.Get(m.ID)
		if err == nil && got.State == models.MatchStateRunning {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("match never started; last state %v err %v", got.State, err)
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}

func TestSchedulerWakesOnNewDeadline(t *testing.T) {
	coord, clock, _ := newTestCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewScheduler(coord, clock)
	go s.Run(ctx)

	// Idle scheduler parked on its poll timer.
	clock.BlockUntil(1)

	m, err := coord.CreateAndJoin(ctx, "p1", "Ada", CreateOptions{Lang: "go", SinglePlayer: true})
	if err != nil {
		t.Fatalf("CreateAndJoin: %v", err)
	}

	// The create poked the scheduler; once it re-arms for the real
	// deadline, advancing starts the race.
	clock.BlockUntil(1)
	clock.Advance(testRaceConfig().SoloWait + time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		got, err := coord.Get(m.ID)
		if err == nil && got.State == models.MatchStateRunning {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("match never started; last state %v err %v", got.State, err)
		case <-time.After(time.Millisecond):
		}
	}
}
