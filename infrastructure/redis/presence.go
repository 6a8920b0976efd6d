// Package redis mirrors presence for other processes and carries events
// emitted by processes that hold no websocket.
package redis

import (
	"collab-realtime/domain"
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"log/slog"
	"time"
)

// releaseScript deletes the key only if this node still owns it, so a node that
// lost a user to another node never erases the newer entry.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Presence writes "presence:{user}" = node id with a TTL refreshed by keepalive.
type Presence struct {
	client *redis.Client
	nodeID string
	ttl    time.Duration
	log    *slog.Logger
}

func NewPresence(client *redis.Client, nodeID string, ttl time.Duration, log *slog.Logger) *Presence {
	return &Presence{client: client, nodeID: nodeID, ttl: ttl, log: log.With("component", "presence")}
}

func presenceKey(userID domain.UserID) string {
	return fmt.Sprintf("presence:%d", userID)
}

// Online is best effort: the local registry stays the source of truth for this node.
func (p *Presence) Online(ctx context.Context, userID domain.UserID) {
	if err := p.client.Set(ctx, presenceKey(userID), p.nodeID, p.ttl).Err(); err != nil {
		p.log.Warn("presence refresh failed", "user_id", userID, "error", err)
	}
}

func (p *Presence) Offline(ctx context.Context, userID domain.UserID) {
	if err := releaseScript.Run(ctx, p.client, []string{presenceKey(userID)}, p.nodeID).Err(); err != nil {
		p.log.Warn("presence release failed", "user_id", userID, "error", err)
	}
}

// Node returns the node a user is connected to, "" when offline everywhere.
func (p *Presence) Node(ctx context.Context, userID domain.UserID) (string, error) {
	node, err := p.client.Get(ctx, presenceKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return node, err
}

// Nodes reads the holders of several users in one round trip.
func (p *Presence) Nodes(ctx context.Context, userIDs []domain.UserID) (map[domain.UserID]string, error) {
	nodes := make(map[domain.UserID]string, len(userIDs))
	if len(userIDs) == 0 {
		return nodes, nil
	}
	values, err := p.client.MGet(ctx, lo.Map(userIDs, func(u domain.UserID, _ int) string {
		return presenceKey(u)
	})...).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence: %w", err)
	}
	for i, v := range values {
		node, _ := v.(string)
		nodes[userIDs[i]] = node
	}
	return nodes, nil
}
