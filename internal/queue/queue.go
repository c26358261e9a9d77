package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Task kinds handled by the worker process.
const (
	KindQuoteFollowup = "quote-followup"
)

// Task is a unit of background work. Payload is an opaque JSON document owned
// by the kind's handler.
type Task struct {
	Kind        string
	Payload     []byte
	DedupKey    string
	MaxAttempts int
	Delay       time.Duration
}

// Enqueuer publishes tasks onto Redis sorted-set queues. The member score is
// the task's availability time, which gives delayed delivery for free.
type Enqueuer struct {
	R        *redis.Client
	Prefix   string
	DedupTTL time.Duration
}

// Enqueue schedules the task. A task with a dedup key is accepted at most
// once per deduplication window; duplicates are silently dropped.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	kind := sanitizeKind(t.Kind)
	if kind == "" {
		return errors.New("queue: task kind is required")
	}
	msg := envelope{
		Kind:        kind,
		Key:         t.DedupKey,
		Payload:     t.Payload,
		MaxAttempts: t.MaxAttempts,
		AvailableAt: time.Now().Add(t.Delay).UnixNano(),
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = 8
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if msg.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ok, err := e.R.SetNX(ctx, dedupKey(e.Prefix, kind, msg.Key), "1", ttl).Result()
		if err != nil {
			return fmt.Errorf("queue dedup: %w", err)
		}
		if !ok {
			return nil
		}
	}

	if err := e.R.ZAdd(ctx, queueKey(e.Prefix, kind), redis.Z{
		Score:  float64(msg.AvailableAt),
		Member: raw,
	}).Err(); err != nil {
		// Release the dedup claim so the caller's retry is not swallowed.
		if msg.Key != "" {
			e.R.Del(ctx, dedupKey(e.Prefix, kind, msg.Key))
		}
		return err
	}
	return nil
}

// Worker drains one task kind. Claimed tasks are parked on a processing set
// scored by a visibility deadline so crashed workers release their work.
type Worker struct {
	R                 *redis.Client
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	RetryBase         time.Duration
	Handler           func(context.Context, Task) error
}

// Run consumes tasks until the context is cancelled.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	kind := sanitizeKind(w.Kind)
	if kind == "" {
		return errors.New("queue: worker kind is required")
	}
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	retryBase := w.RetryBase
	if retryBase <= 0 {
		retryBase = 250 * time.Millisecond
	}

	qKey := queueKey(w.Prefix, kind)
	pKey := processingKey(w.Prefix, kind)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	reclaim := time.NewTicker(time.Second)
	defer reclaim.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-reclaim.C:
			if err := w.reclaimExpired(ctx, pKey, qKey); err != nil {
				return err
			}
		default:
		}

		res, err := w.R.ZPopMin(ctx, qKey, 1).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if errors.Is(err, redis.Nil) {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return err
		}
		if len(res) == 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		member, ok := res[0].Member.(string)
		if !ok {
			continue
		}
		msg, err := decode(member)
		if err != nil {
			continue
		}

		now := time.Now().UnixNano()
		if msg.AvailableAt > now {
			// Claimed too early. Put it back and wait for it to come due.
			w.R.ZAdd(ctx, qKey, redis.Z{Score: float64(msg.AvailableAt), Member: member})
			wait := time.Duration(msg.AvailableAt - now)
			if wait > time.Second {
				wait = time.Second
			}
			time.Sleep(wait)
			continue
		}

		msg.Attempt++
		claimed, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		deadline := time.Now().Add(visibility).UnixNano()
		if err := w.R.ZAdd(ctx, pKey, redis.Z{Score: float64(deadline), Member: claimed}).Err(); err != nil {
			return err
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(claimed string, m envelope) {
			defer func() { <-sem }()
			defer wg.Done()
			err := w.Handler(ctx, Task{Kind: kind, Payload: m.Payload, DedupKey: m.Key})
			if err != nil {
				w.retryOrBury(ctx, qKey, pKey, claimed, m, retryBase)
				return
			}
			w.ack(ctx, pKey, claimed, m)
		}(string(claimed), msg)
	}
}

// retryOrBury reschedules a failed task with exponential backoff, or moves it
// to the dead-letter list once its attempts are spent.
func (w Worker) retryOrBury(ctx context.Context, qKey, pKey, claimed string, msg envelope, base time.Duration) {
	_ = w.R.ZRem(ctx, pKey, claimed).Err()
	if msg.Attempt >= msg.MaxAttempts {
		raw, err := json.Marshal(msg)
		if err != nil {
			return
		}
		_ = w.R.LPush(ctx, dlqKey(w.Prefix, msg.Kind), raw).Err()
		if msg.Key != "" {
			_ = w.R.Del(ctx, dedupKey(w.Prefix, msg.Kind, msg.Key)).Err()
		}
		return
	}
	msg.AvailableAt = time.Now().Add(backoff(base, msg.Attempt)).UnixNano()
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = w.R.ZAdd(ctx, qKey, redis.Z{Score: float64(msg.AvailableAt), Member: raw}).Err()
}

func (w Worker) ack(ctx context.Context, pKey, claimed string, msg envelope) {
	_ = w.R.ZRem(ctx, pKey, claimed).Err()
	if msg.Key != "" {
		_ = w.R.Del(ctx, dedupKey(w.Prefix, msg.Kind, msg.Key)).Err()
	}
}

// reclaimExpired returns tasks whose visibility deadline passed to the main
// queue so another worker can pick them up.
func (w Worker) reclaimExpired(ctx context.Context, pKey, qKey string) error {
	now := fmt.Sprintf("%f", float64(time.Now().UnixNano()))
	expired, err := w.R.ZRangeByScore(ctx, pKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, raw := range expired {
		msg, err := decode(raw)
		if err != nil {
			continue
		}
		_ = w.R.ZRem(ctx, pKey, raw).Err()
		msg.AvailableAt = time.Now().UnixNano()
		encoded, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, qKey, redis.Z{Score: float64(msg.AvailableAt), Member: encoded}).Err()
	}
	return nil
}

func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if d > time.Minute {
		d = time.Minute
	}
	// up to 20% jitter either way to spread herd retries
	delta := (rand.Float64()*2 - 1) * 0.2 * float64(d)
	return d + time.Duration(delta)
}

func queueKey(prefix, kind string) string {
	if prefix == "" {
		return "queue:" + kind
	}
	return prefix + ":queue:" + kind
}

func processingKey(prefix, kind string) string {
	return queueKey(prefix, kind) + ":processing"
}

func dlqKey(prefix, kind string) string {
	return queueKey(prefix, kind) + ":dlq"
}

func dedupKey(prefix, kind, key string) string {
	if prefix == "" {
		return "queue:dedup:" + kind + ":" + key
	}
	return prefix + ":dedup:" + kind + ":" + key
}

func sanitizeKind(kind string) string {
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == ':':
		default:
			return ""
		}
	}
	return kind
}

func decode(raw string) (envelope, error) {
	var msg envelope
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return envelope{}, err
	}
	return msg, nil
}

type envelope struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	AvailableAt int64  `json:"available_at"`
}
