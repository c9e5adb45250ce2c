package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// UpdateChannel carries live count updates between the recorder and the
// websocket feed.
const UpdateChannel = "view_updates"

// CountUpdate is the payload published after each recorded view.
type CountUpdate struct {
	PostID      uint64 `json:"post_id"`
	TotalViews  int64  `json:"total_views"`
	UniqueViews int64  `json:"unique_views"`
	Timestamp   int64  `json:"timestamp"`
}

// HotCache is a read-through layer in front of the view_cache table:
// Redis when reachable, an in-process cache otherwise. Losing it only
// costs latency, never correctness.
type HotCache struct {
	redisClient *redis.Client
	localCache  *gocache.Cache
	ttl         time.Duration
	logger      zerolog.Logger
}

// NewHotCache connects to Redis at addr. When the ping fails the layer
// degrades to local caching only.
func NewHotCache(addr string, ttl time.Duration, logger zerolog.Logger) *HotCache {
	hc := &HotCache{
		localCache: gocache.New(5*time.Minute, 10*time.Minute),
		ttl:        ttl,
		logger:     logger.With().Str("component", "hot_cache").Logger(),
	}

	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		hc.logger.Warn().Err(err).Msg("redis unreachable, using local cache only")
		client.Close()
		return hc
	}

	hc.redisClient = client
	hc.logger.Info().Str("addr", addr).Msg("redis connection established")
	return hc
}

func (hc *HotCache) Available() bool {
	return hc.redisClient != nil
}

func (hc *HotCache) Set(ctx context.Context, key string, value interface{}) error {
	hc.localCache.Set(key, value, hc.ttl)

	if hc.redisClient != nil {
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return hc.redisClient.Set(ctx, key, data, hc.ttl).Err()
	}
	return nil
}

func (hc *HotCache) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	if val, found := hc.localCache.Get(key); found {
		data, err := json.Marshal(val)
		if err != nil {
			return false, err
		}
		return true, json.Unmarshal(data, target)
	}

	if hc.redisClient != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		data, err := hc.redisClient.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return false, nil
		} else if err != nil {
			return false, err
		}
		hc.localCache.Set(key, json.RawMessage(data), 5*time.Minute)
		return true, json.Unmarshal(data, target)
	}
	return false, nil
}

func (hc *HotCache) Delete(ctx context.Context, key string) error {
	hc.localCache.Delete(key)

	if hc.redisClient != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return hc.redisClient.Del(ctx, key).Err()
	}
	return nil
}

// Increment bumps a counter key, used by the rate limiter.
func (hc *HotCache) Increment(ctx context.Context, key string, value int64) (int64, error) {
	if hc.redisClient != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return hc.redisClient.IncrBy(ctx, key, value).Result()
	}

	var current int64
	if val, found := hc.localCache.Get(key); found {
		current = val.(int64)
	}
	current += value
	hc.localCache.Set(key, current, gocache.DefaultExpiration)
	return current, nil
}

// Expire sets a TTL on a counter key.
func (hc *HotCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if hc.redisClient == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return hc.redisClient.Expire(ctx, key, ttl).Err()
}

// PublishUpdate fans a count update out to subscribers. Best effort: a
// missing Redis just means no live feed.
func (hc *HotCache) PublishUpdate(ctx context.Context, update CountUpdate) {
	if hc.redisClient == nil {
		return
	}
	update.Timestamp = time.Now().Unix()
	data, err := json.Marshal(update)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := hc.redisClient.Publish(ctx, UpdateChannel, data).Err(); err != nil {
		hc.logger.Warn().Err(err).Msg("publish failed")
	}
}

// SubscribeUpdates returns a channel of live count updates. The channel
// closes when ctx is done or Redis is unavailable.
func (hc *HotCache) SubscribeUpdates(ctx context.Context) <-chan CountUpdate {
	out := make(chan CountUpdate)
	if hc.redisClient == nil {
		close(out)
		return out
	}

	pubsub := hc.redisClient.Subscribe(ctx, UpdateChannel)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var update CountUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					hc.logger.Warn().Err(err).Msg("malformed count update")
					continue
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (hc *HotCache) Close() error {
	if hc.redisClient != nil {
		return hc.redisClient.Close()
	}
	return nil
}
