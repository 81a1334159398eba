package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chatrelay/metrics"
	"chatrelay/models"
)

// HistoryStore reads and appends conversation turns keyed by session identity.
//
// Append is a read-modify-write of the whole serialized conversation. Appends
// for one session are serialized inside this process; writers in other
// processes can still race and the last write wins.
type HistoryStore struct {
	kv     KVStore
	prefix string
	clock  Clock

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewHistoryStore(kv KVStore, prefix string, clock Clock) *HistoryStore {
	if clock == nil {
		clock = SystemClock
	}
	return &HistoryStore{
		kv:     kv,
		prefix: prefix,
		clock:  clock,
		locks:  make(map[string]*sessionLock),
	}
}

func (h *HistoryStore) key(sessionID string) string {
	return h.prefix + sessionID
}

// Get returns the most recent window turns oldest-first, or every turn when
// window is 0. An unknown session yields an empty slice.
func (h *HistoryStore) Get(ctx context.Context, sessionID string, window int) ([]models.Turn, error) {
	conv, err := h.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return conv.Window(window), nil
}

// Append adds turn to the end of the session's conversation. A zero timestamp
// is stamped from the clock; one older than the last stored turn is raised to it.
func (h *HistoryStore) Append(ctx context.Context, sessionID string, turn models.Turn) error {
	unlock := h.lock(sessionID)
	defer unlock()

	conv, err := h.load(ctx, sessionID)
	if err != nil {
		return err
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = h.clock.Now()
	}
	if last, ok := conv.Last(); ok && turn.Timestamp.Before(last.Timestamp) {
		turn.Timestamp = last.Timestamp
	}
	conv = append(conv, turn)

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode history for %s: %w", sessionID, err)
	}

	start := time.Now()
	err = h.kv.Set(ctx, h.key(sessionID), string(data))
	metrics.StoreLatency.WithLabelValues("set").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStoreUnavailable, sessionID, err)
	}
	return nil
}

// Ping reports whether the backend is reachable.
func (h *HistoryStore) Ping(ctx context.Context) error {
	return h.kv.Ping(ctx)
}

func (h *HistoryStore) load(ctx context.Context, sessionID string) (models.Conversation, error) {
	start := time.Now()
	raw, found, err := h.kv.Get(ctx, h.key(sessionID))
	metrics.StoreLatency.WithLabelValues("get").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, sessionID, err)
	}

	conv := models.Conversation{}
	if !found || raw == "" {
		return conv, nil
	}
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", sessionID, err)
	}
	return conv, nil
}

func (h *HistoryStore) lock(sessionID string) func() {
	h.mu.Lock()
	l, ok := h.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		h.locks[sessionID] = l
	}
	l.refs++
	h.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		h.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.locks, sessionID)
		}
		h.mu.Unlock()
	}
}
