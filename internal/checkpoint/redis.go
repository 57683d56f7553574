package checkpoint

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "cp:"

// saveScript guards the write with the stored epoch: a lower epoch is
// rejected (-1), an equal epoch with a non-advancing offset is a no-op (0).
var saveScript = redis.NewScript(`
local cur = redis.call("HMGET", KEYS[1], "epoch", "offset")
local epoch = tonumber(ARGV[1])
local offset = tonumber(ARGV[2])
if cur[1] then
  local ce = tonumber(cur[1])
  local co = tonumber(cur[2])
  if epoch < ce then return -1 end
  if epoch == ce and offset <= co then return 0 end
end
redis.call("HSET", KEYS[1], "epoch", ARGV[1], "offset", ARGV[2], "updated_at", ARGV[3])
return 1
`)

// RedisStore keeps checkpoints as redis hashes keyed cp:{stream}:{group}:{partition}.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisKey(k Key) string {
	return redisKeyPrefix + k.Stream + ":" + k.ConsumerGroup + ":" + strconv.Itoa(k.Partition)
}

func (s *RedisStore) Load(ctx context.Context, key Key) (Checkpoint, error) {
	vals, err := s.rdb.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return Checkpoint{}, err
	}
	if len(vals) == 0 {
		return Checkpoint{}, ErrNotFound
	}

	cp := Checkpoint{Key: key}
	if cp.Offset, err = strconv.ParseInt(vals["offset"], 10, 64); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: bad offset for %s: %w", redisKey(key), err)
	}
	if cp.Epoch, err = strconv.ParseInt(vals["epoch"], 10, 64); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: bad epoch for %s: %w", redisKey(key), err)
	}
	if ts, perr := strconv.ParseInt(vals["updated_at"], 10, 64); perr == nil {
		cp.UpdatedAt = time.UnixMilli(ts)
	}
	return cp, nil
}

func (s *RedisStore) Save(ctx context.Context, cp Checkpoint) error {
	res, err := saveScript.Run(ctx, s.rdb,
		[]string{redisKey(cp.Key)},
		cp.Epoch, cp.Offset, time.Now().UnixMilli(),
	).Int()
	if err != nil {
		return err
	}
	if res == -1 {
		return ErrStaleEpoch
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, stream, group string) ([]Checkpoint, error) {
	pattern := redisKeyPrefix + stream + ":" + group + ":*"
	prefixLen := len(pattern) - 1

	var out []Checkpoint
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		p, err := strconv.Atoi(iter.Val()[prefixLen:])
		if err != nil {
			continue
		}
		cp, err := s.Load(ctx, Key{Stream: stream, ConsumerGroup: group, Partition: p})
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
