package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pathlight/pathlight/internal/vecindex"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// indexChannel carries snapshot announcements between the writer process and
// reader processes sharing the same index file.
const indexChannel = "pathlight:memory:index"

type indexEvent struct {
	Generation  string    `json:"generation"`
	Count       int       `json:"count"`
	PublishedAt time.Time `json:"published_at"`
}

// Notifier propagates index snapshot updates over Redis pub/sub so reader
// processes reload promptly instead of waiting out the periodic ticker.
// Loss of the Redis connection only widens the staleness window; the ticker
// keeps readers converging regardless.
type Notifier struct {
	client *redis.Client
	logger *zap.Logger
}

// NewNotifier connects to Redis using a URL of the form
// redis://host:port/db. The connection is verified eagerly so wiring errors
// surface at startup.
func NewNotifier(ctx context.Context, redisURL string, logger *zap.Logger) (*Notifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Notifier{client: client, logger: logger}, nil
}

// Publish announces a new snapshot. Best effort: a publish failure is logged
// and readers fall back to their periodic reload.
func (n *Notifier) Publish(ctx context.Context, generation string, count int) {
	if n == nil || n.client == nil {
		return
	}
	payload, err := json.Marshal(indexEvent{
		Generation:  generation,
		Count:       count,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := n.client.Publish(ctx, indexChannel, payload).Err(); err != nil {
		n.logger.Warn("publish index event failed", zap.Error(err))
	}
}

// Watch reloads the index whenever an announcement arrives, and additionally
// on every tick of interval as a bound on staleness when pub/sub delivery
// fails. It blocks until ctx is cancelled. Watch belongs in reader processes
// only; an index with unsnapshotted local writes refuses to reload.
func (n *Notifier) Watch(ctx context.Context, index *vecindex.Index, interval time.Duration) {
	if n == nil || n.client == nil || index == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	sub := n.client.Subscribe(ctx, indexChannel)
	defer sub.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var ev indexEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			if ev.Generation == index.Generation() && ev.Count <= index.Size() {
				continue
			}
			n.reload(index)
		case <-ticker.C:
			n.reload(index)
		}
	}
}

func (n *Notifier) reload(index *vecindex.Index) {
	if err := index.Reload(); err != nil {
		n.logger.Warn("index reload failed", zap.Error(err))
		return
	}
	n.logger.Debug("index reloaded",
		zap.String("generation", index.Generation()),
		zap.Int("size", index.Size()))
}

// Close releases the Redis connection.
func (n *Notifier) Close() error {
	if n == nil || n.client == nil {
		return nil
	}
	return n.client.Close()
}
