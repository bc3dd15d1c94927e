package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "argus:"
	redisOpTimeout     = 5 * time.Second
)

// RedisStore is a NotesStore shared between machines. Each agent owns three
// hashes: notes (topic -> text), tool calls and tool failures (tool -> count).
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to url ("redis://[:pass@]host:port/db") and pings it.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.Info("memory: redis store connected", "addr", opts.Addr, "db", opts.DB)
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStore) key(agentID, kind string) string {
	return s.prefix + kind + ":" + agentID
}

func (s *RedisStore) Notes(agentID string) ([]Note, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	all, err := s.rdb.HGetAll(ctx, s.key(agentID, "notes")).Result()
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	var out []Note
	for topic, text := range all {
		out = append(out, Note{Topic: topic, Text: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

func (s *RedisStore) PutNote(agentID, topic, text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.rdb.HSet(ctx, s.key(agentID, "notes"), topic, text).Err(); err != nil {
		return fmt.Errorf("put note: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteNote(agentID, topic string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.rdb.HDel(ctx, s.key(agentID, "notes"), topic).Err(); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordToolUse(agentID, tool string, ok bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, s.key(agentID, "tool_calls"), tool, 1)
		if !ok {
			p.HIncrBy(ctx, s.key(agentID, "tool_failures"), tool, 1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record tool use: %w", err)
	}
	return nil
}

func (s *RedisStore) TopTools(agentID string, n int) ([]ToolStat, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	calls, err := s.rdb.HGetAll(ctx, s.key(agentID, "tool_calls")).Result()
	if err != nil {
		return nil, fmt.Errorf("query tool stats: %w", err)
	}
	failures, err := s.rdb.HGetAll(ctx, s.key(agentID, "tool_failures")).Result()
	if err != nil {
		return nil, fmt.Errorf("query tool stats: %w", err)
	}
	return rankToolStats(calls, failures, n), nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// rankToolStats builds stats from string counters, most used first, ties by
// name, keeping n (all when n <= 0).
func rankToolStats(calls, failures map[string]string, n int) []ToolStat {
	out := make([]ToolStat, 0, len(calls))
	for tool, c := range calls {
		st := ToolStat{Tool: tool}
		st.Calls, _ = strconv.Atoi(c)
		st.Failures, _ = strconv.Atoi(failures[tool])
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].Tool < out[j].Tool
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
