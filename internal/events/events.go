package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/voithos/swiftcode/internal/models"
)

// Topic identifies a class of match event.
type Topic string

const (
	TopicMatchCreated Topic = "match:created"
	TopicMatchUpdated Topic = "match:updated"
	TopicMatchRemoved Topic = "match:removed"
)

// Event is one published match state change. Match is a snapshot taken at
// publish time; TimeRemaining is the countdown value computed against the
// server clock at the same instant, so observers never need to trust their
// own clock for correctness.
type Event struct {
	ID            string        `json:"id"`
	Topic         Topic         `json:"topic"`
	Timestamp     time.Time     `json:"timestamp"`
	Match         models.Match  `json:"match"`
	TimeRemaining time.Duration `json:"timeRemaining"`
}

// NewEvent builds an event envelope for a match snapshot.
func NewEvent(topic Topic, match models.Match, remaining time.Duration, now time.Time) Event {
	return Event{
		ID:            uuid.New().String(),
		Topic:         topic,
		Timestamp:     now,
		Match:         match,
		TimeRemaining: remaining,
	}
}
