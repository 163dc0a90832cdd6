package gateway

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/voithos/swiftcode/internal/events"
	"github.com/voithos/swiftcode/internal/models"
)

// AttachFeeds subscribes the manager's pools to the event bus. The returned
// cancel func detaches both feeds.
func (g *Manager) AttachFeeds(bus *events.Bus) func() {
	cancelLobby := bus.Subscribe(g.lobbyFeed,
		events.TopicMatchCreated, events.TopicMatchUpdated, events.TopicMatchRemoved)
	cancelRoom := bus.Subscribe(g.roomFeed,
		events.TopicMatchUpdated, events.TopicMatchRemoved)
	return func() {
		cancelLobby()
		cancelRoom()
	}
}

// lobbyFeed forwards match list changes to every lobby connection. Created
// and updated events for unviewable matches are suppressed; removals always
// go out so clients can drop a match that turned unviewable mid-flight.
func (g *Manager) lobbyFeed(ev events.Event) {
	if !lobbyVisible(ev) {
		return
	}
	out := Outbound{
		Type:            lobbyType(ev.Topic),
		Match:           cloneForWire(ev.Match),
		TimeRemainingMS: ev.TimeRemaining.Milliseconds(),
	}
	payload, err := json.Marshal(out)
	if err != nil {
		log.Error().Err(err).Str("topic", string(ev.Topic)).Msg("failed to marshal lobby event")
		return
	}
	g.BroadcastLobby(payload)
}

// roomFeed forwards updates and removal to the match's own room pool.
func (g *Manager) roomFeed(ev events.Event) {
	out := Outbound{
		Type:            lobbyType(ev.Topic),
		Match:           cloneForWire(ev.Match),
		TimeRemainingMS: ev.TimeRemaining.Milliseconds(),
	}
	payload, err := json.Marshal(out)
	if err != nil {
		log.Error().Err(err).Str("topic", string(ev.Topic)).Msg("failed to marshal room event")
		return
	}
	g.BroadcastRoom(ev.Match.ID, payload)
}

// lobbyVisible decides whether a lobby client should see this event.
func lobbyVisible(ev events.Event) bool {
	if ev.Topic == events.TopicMatchRemoved {
		return true
	}
	return ev.Match.IsViewable
}

func lobbyType(topic events.Topic) string {
	switch topic {
	case events.TopicMatchCreated:
		return MsgMatchCreated
	case events.TopicMatchRemoved:
		return MsgMatchRemoved
	default:
		return MsgMatchUpdated
	}
}

func cloneForWire(m models.Match) *models.Match {
	snap := m.Clone()
	return &snap
}
