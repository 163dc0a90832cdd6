// Package relay republishes in-process match events to NATS JetStream so
// other services (leaderboards, analytics) can consume them. The in-process
// bus stays the source of truth; the relay is an optional bridge and its
// failures never affect match state.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/voithos/swiftcode/internal/events"
)

// Config holds JetStream relay configuration.
type Config struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration
	PublishWait   time.Duration
}

// DefaultConfig returns default relay configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StreamName:    "RACE_EVENTS",
		SubjectPrefix: "race.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		MaxAge:        24 * time.Hour,
		PublishWait:   5 * time.Second,
	}
}

// Publisher bridges the event bus to a JetStream stream.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config

	ch     chan events.Event
	cancel func()
}

// NewPublisher connects to NATS and ensures the stream exists.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &Publisher{
		nc:     nc,
		js:     js,
		config: cfg,
		ch:     make(chan events.Event, 256),
	}

	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Typing race match event stream",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	if _, err := p.js.Stream(ctx, p.config.StreamName); err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", p.config.StreamName).Msg("created JetStream stream")
	}
	return nil
}

// Attach subscribes the relay to the bus and starts the forwarding loop.
// Bus handlers only enqueue; the JetStream publish happens on the relay's
// own goroutine.
func (p *Publisher) Attach(ctx context.Context, bus *events.Bus) {
	p.cancel = bus.Subscribe(p.enqueue,
		events.TopicMatchCreated, events.TopicMatchUpdated, events.TopicMatchRemoved)
	go p.run(ctx)
}

func (p *Publisher) enqueue(ev events.Event) {
	select {
	case p.ch <- ev:
	default:
		log.Warn().
			Str("topic", string(ev.Topic)).
			Msg("relay queue full, dropping event")
	}
}

func (p *Publisher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.ch:
			if err := p.publish(ctx, ev); err != nil {
				log.Error().
					Err(err).
					Str("topic", string(ev.Topic)).
					Str("match_id", ev.Match.ID.String()).
					Msg("failed to relay event to JetStream")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev events.Event) error {
	// race.events.match:created -> race.events.match.created
	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, subjectSuffix(ev.Topic))

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.config.PublishWait)
	defer cancel()
	if _, err := p.js.Publish(pubCtx, subject, data, jetstream.WithMsgID(ev.ID)); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

func subjectSuffix(topic events.Topic) string {
	switch topic {
	case events.TopicMatchCreated:
		return "match.created"
	case events.TopicMatchUpdated:
		return "match.updated"
	case events.TopicMatchRemoved:
		return "match.removed"
	default:
		return "match.unknown"
	}
}

// Close detaches from the bus and drains the connection.
func (p *Publisher) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	if err := p.nc.Drain(); err != nil {
		log.Error().Err(err).Msg("failed to drain NATS connection")
	}
}
