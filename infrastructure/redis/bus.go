package redis

import (
	"collab-realtime/domain"
	"context"
	"fmt"
	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"log/slog"
	"time"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// busMessage is what travels between nodes. Origin is the node the event entered on:
// it already pushed to its own users and owns the fallbacks nobody else holds.
type busMessage struct {
	Origin string        `json:"origin"`
	Actor  domain.UserID `json:"actor"`
	Frame  []byte        `json:"frame"`
}

// RelayedEmitter is the dispatch entrypoint bus messages are handed to.
type RelayedEmitter interface {
	EmitRelayed(ctx context.Context, origin string, actor domain.UserID, raw []byte) (domain.DispatchReport, error)
}

// Publisher relays events that entered on this node to the others.
type Publisher struct {
	client  *redis.Client
	channel string
	nodeID  string
}

func NewPublisher(client *redis.Client, channel, nodeID string) *Publisher {
	return &Publisher{client: client, channel: channel, nodeID: nodeID}
}

func (p *Publisher) Relay(ctx context.Context, actor domain.UserID, frame []byte) error {
	msg, err := jsonAPI.Marshal(busMessage{Origin: p.nodeID, Actor: actor, Frame: frame})
	if err != nil {
		return fmt.Errorf("encode bus message: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, msg).Err(); err != nil {
		return fmt.Errorf("publish on %s: %w", p.channel, err)
	}
	return nil
}

// Subscriber is a supervised worker feeding events relayed by other nodes into
// the local dispatcher. Messages this node published itself are skipped.
type Subscriber struct {
	client     *redis.Client
	channel    string
	nodeID     string
	emitter    RelayedEmitter
	log        *slog.Logger
	maxBackoff time.Duration
}

func NewSubscriber(client *redis.Client, channel, nodeID string, emitter RelayedEmitter, log *slog.Logger) *Subscriber {
	return &Subscriber{
		client:     client,
		channel:    channel,
		nodeID:     nodeID,
		emitter:    emitter,
		log:        log.With("component", "emit_bus", "channel", channel),
		maxBackoff: 30 * time.Second,
	}
}

// Run returns an error when the subscription drops so the supervisor restarts it.
func (s *Subscriber) Run(ctx context.Context) error {
	if err := s.waitForRedis(ctx); err != nil {
		return err
	}

	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.log.Info("Listening for relayed events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", s.channel)
			}
			s.handle(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload string) {
	var msg busMessage
	if err := jsonAPI.UnmarshalFromString(payload, &msg); err != nil {
		s.log.Warn("bus message dropped", "error", err)
		return
	}
	if msg.Origin == s.nodeID {
		return
	}
	report, err := s.emitter.EmitRelayed(ctx, msg.Origin, msg.Actor, msg.Frame)
	if err != nil {
		s.log.Warn("relayed event dropped", "origin", msg.Origin, "error", err)
		return
	}
	s.log.Debug("relayed event dispatched", "origin", msg.Origin, "type", report.EventType, "recipients", len(report.Recipients))
}

func (s *Subscriber) waitForRedis(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = s.maxBackoff
	policy.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		return s.client.Ping(ctx).Err()
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		s.log.Warn("redis unreachable, retrying", "error", err, "wait", wait)
	})
}
