package directory

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pub/sub channels used by the notification bus.
const (
	ChannelGameServerNotifs = "gameserver:notifs"
	ChannelGameClientNotifs = "gameclient:notifs"
)

// Directory is the indexed key/value store backing the fleet. It exposes
// only the primitives the registry and notifier need; no business logic
// lives here.
type Directory struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Directory {
	return &Directory{rdb: rdb}
}

// SetWithTTL overwrites key with an absolute expiry.
func (d *Directory) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return d.rdb.Set(ctx, key, value, ttl).Err()
}

// Get returns the value at key and whether it exists.
func (d *Directory) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := d.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Pipelined runs fn's queued commands on a single connection in declared
// order. Not atomic across keys.
func (d *Directory) Pipelined(ctx context.Context, fn func(pipe redis.Pipeliner) error) error {
	_, err := d.rdb.Pipelined(ctx, fn)
	return err
}

// ZAdd upserts member into a timestamp-scored index.
func (d *Directory) ZAdd(ctx context.Context, index, member string, score float64) error {
	return d.rdb.ZAdd(ctx, index, redis.Z{Score: score, Member: member}).Err()
}

// ZRemRangeByScore evicts members with score <= maxScore.
func (d *Directory) ZRemRangeByScore(ctx context.Context, index string, maxScore float64) error {
	return d.rdb.ZRemRangeByScore(ctx, index, "0", formatScore(maxScore)).Err()
}

// ZPopMin atomically removes and returns the lowest-score member, if any.
func (d *Directory) ZPopMin(ctx context.Context, index string) (string, float64, bool, error) {
	res, err := d.rdb.ZPopMin(ctx, index, 1).Result()
	if err != nil {
		return "", 0, false, err
	}
	if len(res) == 0 {
		return "", 0, false, nil
	}
	member, _ := res[0].Member.(string)
	return member, res[0].Score, true, nil
}

// HSet writes one field of a hash.
func (d *Directory) HSet(ctx context.Context, key, field, value string) error {
	return d.rdb.HSet(ctx, key, field, value).Err()
}

// HDel removes one field of a hash.
func (d *Directory) HDel(ctx context.Context, key, field string) error {
	return d.rdb.HDel(ctx, key, field).Err()
}

// HGetAll returns the full hash at key.
func (d *Directory) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return d.rdb.HGetAll(ctx, key).Result()
}

// Publish sends payload to all subscribers of channel.
func (d *Directory) Publish(ctx context.Context, channel, payload string) error {
	return d.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a pub/sub subscription on the given channels.
func (d *Directory) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return d.rdb.Subscribe(ctx, channels...)
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
