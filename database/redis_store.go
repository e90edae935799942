package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Records live in hashes rec:<kind>:<id> with fields data and version.
// Each index is a sorted set idx:<name> scored by the INCR counter idxseq:<name>.
const (
	recordKeyPrefix   = "rec:"
	indexKeyPrefix    = "idx:"
	indexSeqKeyPrefix = "idxseq:"
)

var (
	insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'version', 1)
return 1
`)

	putScript = redis.NewScript(`
redis.call('HSET', KEYS[1], 'data', ARGV[1])
return redis.call('HINCRBY', KEYS[1], 'version', 1)
`)

	// -1 absent, -2 version mismatch, otherwise the new version.
	swapScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if not current then
  return -1
end
if tonumber(current) ~= tonumber(ARGV[2]) then
  return -2
end
redis.call('HSET', KEYS[1], 'data', ARGV[1])
return redis.call('HINCRBY', KEYS[1], 'version', 1)
`)

	indexAddScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
local seq = redis.call('INCR', KEYS[2])
redis.call('ZADD', KEYS[1], seq, ARGV[1])
return 1
`)

	// KEYS: record, index, index sequence. ARGV: data, id, overwrite flag.
	// Returns 0 when the record exists and overwrite is off.
	writeListedScript = redis.NewScript(`
if ARGV[3] == '0' and redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1])
redis.call('HINCRBY', KEYS[1], 'version', 1)
if not redis.call('ZSCORE', KEYS[2], ARGV[2]) then
  local seq = redis.call('INCR', KEYS[3])
  redis.call('ZADD', KEYS[2], seq, ARGV[2])
end
return 1
`)

	// KEYS: record, index. ARGV: id. Returns the number of records deleted.
	deleteListedScript = redis.NewScript(`
redis.call('ZREM', KEYS[2], ARGV[1])
return redis.call('DEL', KEYS[1])
`)
)

// RedisStore implements RecordStore and Index on a single Redis instance.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisBackend returns a Backend whose two halves share client.
func NewRedisBackend(client *redis.Client) Backend {
	s := NewRedisStore(client)
	return Backend{Records: s, Index: s, Listing: s, Close: client.Close}
}

func recordKey(kind, id string) string {
	return recordKeyPrefix + kind + ":" + id
}

func (s *RedisStore) Get(ctx context.Context, kind, id string) (Record, error) {
	vals, err := s.client.HMGet(ctx, recordKey(kind, id), "data", "version").Result()
	if err != nil {
		return Record{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	rec, ok, err := decodeHash(vals)
	if err != nil {
		return Record{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	if !ok {
		return Record{}, recordNotFound(kind, id)
	}
	return rec, nil
}

func (s *RedisStore) GetMany(ctx context.Context, kind string, ids []string) (map[string]Record, error) {
	out := make(map[string]Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cmds := make([]*redis.SliceCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HMGet(ctx, recordKey(kind, id), "data", "version")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get many %s: %w", kind, err)
	}
	for i, cmd := range cmds {
		rec, ok, err := decodeHash(cmd.Val())
		if err != nil {
			return nil, fmt.Errorf("get many %s: %w", kind, err)
		}
		if ok {
			out[ids[i]] = rec
		}
	}
	return out, nil
}

func (s *RedisStore) Put(ctx context.Context, kind, id string, data []byte) error {
	if err := putScript.Run(ctx, s.client, []string{recordKey(kind, id)}, data).Err(); err != nil {
		return fmt.Errorf("put %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *RedisStore) Insert(ctx context.Context, kind, id string, data []byte) error {
	created, err := insertScript.Run(ctx, s.client, []string{recordKey(kind, id)}, data).Int()
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", kind, id, err)
	}
	if created == 0 {
		return recordExists(kind, id)
	}
	return nil
}

func (s *RedisStore) Swap(ctx context.Context, kind, id string, data []byte, version int64) error {
	res, err := swapScript.Run(ctx, s.client, []string{recordKey(kind, id)}, data, version).Int64()
	if err != nil {
		return fmt.Errorf("swap %s %s: %w", kind, id, err)
	}
	switch res {
	case -1:
		return recordNotFound(kind, id)
	case -2:
		return ErrVersionConflict
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, kind, id string) (bool, error) {
	n, err := s.client.Del(ctx, recordKey(kind, id)).Result()
	if err != nil {
		return false, fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Add(ctx context.Context, name, id string) error {
	keys := []string{indexKeyPrefix + name, indexSeqKeyPrefix + name}
	if err := indexAddScript.Run(ctx, s.client, keys, id).Err(); err != nil {
		return fmt.Errorf("index add %s %s: %w", name, id, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, name, id string) error {
	if err := s.client.ZRem(ctx, indexKeyPrefix+name, id).Err(); err != nil {
		return fmt.Errorf("index remove %s %s: %w", name, id, err)
	}
	return nil
}

func (s *RedisStore) InsertListed(ctx context.Context, kind, id string, data []byte, index string) error {
	written, err := s.writeListed(ctx, kind, id, data, index, false)
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", kind, id, err)
	}
	if !written {
		return recordExists(kind, id)
	}
	return nil
}

func (s *RedisStore) PutListed(ctx context.Context, kind, id string, data []byte, index string) error {
	if _, err := s.writeListed(ctx, kind, id, data, index, true); err != nil {
		return fmt.Errorf("put %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *RedisStore) writeListed(ctx context.Context, kind, id string, data []byte, index string, overwrite bool) (bool, error) {
	flag := "0"
	if overwrite {
		flag = "1"
	}
	keys := []string{recordKey(kind, id), indexKeyPrefix + index, indexSeqKeyPrefix + index}
	n, err := writeListedScript.Run(ctx, s.client, keys, data, id, flag).Int()
	return n == 1, err
}

func (s *RedisStore) DeleteListed(ctx context.Context, kind, id, index string) (bool, error) {
	keys := []string{recordKey(kind, id), indexKeyPrefix + index}
	n, err := deleteListedScript.Run(ctx, s.client, keys, id).Int()
	if err != nil {
		return false, fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Contains(ctx context.Context, name, id string) (bool, error) {
	err := s.client.ZScore(ctx, indexKeyPrefix+name, id).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("index contains %s %s: %w", name, id, err)
	}
	return true, nil
}

func (s *RedisStore) Page(ctx context.Context, name, cursor string, limit int) (Page, error) {
	after, err := parseCursor(cursor)
	if err != nil {
		return Page{}, err
	}
	limit = normalizeLimit(limit)

	entries, err := s.client.ZRangeArgsWithScores(ctx, redis.ZRangeArgs{
		Key:     indexKeyPrefix + name,
		Start:   "(" + strconv.FormatInt(after, 10),
		Stop:    "+inf",
		ByScore: true,
		Count:   int64(limit + 1),
	}).Result()
	if err != nil {
		return Page{}, fmt.Errorf("index page %s: %w", name, err)
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	page := Page{IDs: make([]string, 0, len(entries))}
	for _, z := range entries {
		member, ok := z.Member.(string)
		if !ok {
			return Page{}, fmt.Errorf("index page %s: unexpected member %T", name, z.Member)
		}
		page.IDs = append(page.IDs, member)
	}
	if hasMore {
		page.Next = formatCursor(int64(entries[len(entries)-1].Score))
	}
	return page, nil
}

func decodeHash(vals []interface{}) (Record, bool, error) {
	if len(vals) != 2 || vals[0] == nil {
		return Record{}, false, nil
	}
	data, ok := vals[0].(string)
	if !ok {
		return Record{}, false, fmt.Errorf("unexpected data type %T", vals[0])
	}
	var version int64
	if v, ok := vals[1].(string); ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Record{}, false, fmt.Errorf("bad version %q: %w", v, err)
		}
		version = parsed
	}
	return Record{Data: []byte(data), Version: version}, true, nil
}
