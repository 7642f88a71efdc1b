package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	apperr "salvo/internal/errors"
	"salvo/internal/retry"
	"salvo/util"
)

// Redis key layout.
const (
	matchKeyPrefix = "salvo:match:"
	liveSetKey     = "salvo:matches"

	// EventsChannel carries JSON-encoded Events.
	EventsChannel = "salvo:events"
)

// DefaultTTL bounds how long a match hash survives without an update,
// so a crashed server does not leave entries behind forever.
const DefaultTTL = 2 * time.Hour

// Redis stores live matches as hashes, indexes them in a set and
// publishes every lifecycle change on EventsChannel.  All writes go
// through a circuit breaker.
type Redis struct {
	rdb     *redis.Client
	ttl     time.Duration
	breaker *retry.CircuitBreaker
	logger  *util.Logger
}

// Connect parses url (redis://[:password@]host:port/db), pings the
// server with exponential backoff and returns a ready registry.
func Connect(ctx context.Context, url string, ttl time.Duration, logger *util.Logger) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	b := retry.DefaultBackoff()
	b.MaxAttempts = 5
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("redis %s: ping attempt %d failed: %v (retrying in %v)", opt.Addr, attempt, err, wait.Truncate(time.Millisecond))
	}
	err = b.Do(ctx, func(_ int) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		rdb.Close()
		return nil, apperr.Wrap("connect", opt.Addr, err)
	}

	logger.Verbose("connected to redis at %s", opt.Addr)
	return New(rdb, ttl, logger), nil
}

// New wraps an existing client.  ttl ≤ 0 selects DefaultTTL.
func New(rdb *redis.Client, ttl time.Duration, logger *util.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Redis{rdb: rdb, ttl: ttl, logger: logger}
	r.breaker = retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
		MaxFailures:  3,
		ResetTimeout: 15 * time.Second,
		HalfOpenMax:  1,
		OnStateChange: func(from, to retry.State) {
			logger.Warn("redis registry circuit %s → %s", from, to)
		},
	})
	return r
}

// Started records m and publishes a started event.
func (r *Redis) Started(ctx context.Context, m Match) error {
	key := matchKeyPrefix + m.ID
	ev := Event{Kind: EventStarted, MatchID: m.ID, Phase: m.Phase, Round: m.Round, At: time.Now().UTC()}
	return r.exec(ctx, ev, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, key,
			"player0", m.Players[0],
			"player1", m.Players[1],
			"phase", m.Phase,
			"round", m.Round,
			"startedAt", m.StartedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, r.ttl)
		pipe.SAdd(ctx, liveSetKey, m.ID)
	})
}

// PhaseChanged updates the match's phase and round and refreshes its
// TTL.
func (r *Redis) PhaseChanged(ctx context.Context, id, phase string, round int) error {
	key := matchKeyPrefix + id
	ev := Event{Kind: EventPhase, MatchID: id, Phase: phase, Round: round, At: time.Now().UTC()}
	return r.exec(ctx, ev, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, "phase", phase, "round", round)
		pipe.Expire(ctx, key, r.ttl)
	})
}

// Ended removes the match and publishes an ended event.
func (r *Redis) Ended(ctx context.Context, id, reason string) error {
	ev := Event{Kind: EventEnded, MatchID: id, Reason: reason, At: time.Now().UTC()}
	return r.exec(ctx, ev, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, matchKeyPrefix+id)
		pipe.SRem(ctx, liveSetKey, id)
	})
}

// Live returns every match still present.  Set members whose hash has
// expired are pruned.
func (r *Redis) Live(ctx context.Context) ([]Match, error) {
	ids, err := r.rdb.SMembers(ctx, liveSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}

	out := make([]Match, 0, len(ids))
	for _, id := range ids {
		fields, err := r.rdb.HGetAll(ctx, matchKeyPrefix+id).Result()
		if err != nil {
			return nil, fmt.Errorf("get match %s: %w", id, err)
		}
		if len(fields) == 0 {
			r.rdb.SRem(ctx, liveSetKey, id)
			continue
		}
		out = append(out, parseMatch(id, fields))
	}
	return out, nil
}

// Subscribe streams lifecycle events until ctx is done.  The returned
// channel is closed when the subscription ends.  It returns once the
// subscription is confirmed, so no event published afterwards is lost.
func (r *Redis) Subscribe(ctx context.Context) (<-chan Event, error) {
	ps := r.rdb.Subscribe(ctx, EventsChannel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", EventsChannel, err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.Debug("registry: bad event payload: %v", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis client.
func (r *Redis) Close() error { return r.rdb.Close() }

// exec runs the queued writes plus the event publish in one MULTI/EXEC
// through the breaker.
func (r *Redis) exec(ctx context.Context, ev Event, queue func(redis.Pipeliner)) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.breaker.Execute(func() error {
		pipe := r.rdb.TxPipeline()
		queue(pipe)
		pipe.Publish(ctx, EventsChannel, payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("registry %s %s: %w", ev.Kind, ev.MatchID, err)
		}
		return nil
	})
}

func parseMatch(id string, f map[string]string) Match {
	m := Match{
		ID:      id,
		Players: [2]string{f["player0"], f["player1"]},
		Phase:   f["phase"],
	}
	m.Round, _ = strconv.Atoi(f["round"])
	m.StartedAt, _ = time.Parse(time.RFC3339Nano, f["startedAt"])
	return m
}
