package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"chatrelay/models"
)

type emitted struct {
	ConnID  string
	Event   string
	Message string
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (e *recordingEmitter) Emit(connID, event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := emitted{ConnID: connID, Event: event}
	if p, ok := payload.(models.MessagePayload); ok {
		rec.Message = p.Message
	}
	e.events = append(e.events, rec)
	return e.err
}

func (e *recordingEmitter) snapshot() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emitted(nil), e.events...)
}

// scriptedGenerator yields fragments and then failErr (or io.EOF).
type scriptedGenerator struct {
	fragments []string
	failErr   error
	startErr  error

	mu    sync.Mutex
	calls []string
}

func (g *scriptedGenerator) Generate(_ context.Context, model, payload string) (FragmentStream, error) {
	g.mu.Lock()
	g.calls = append(g.calls, model+"|"+payload)
	g.mu.Unlock()
	if g.startErr != nil {
		return nil, g.startErr
	}
	return &scriptedStream{fragments: g.fragments, failErr: g.failErr}, nil
}

type scriptedStream struct {
	fragments []string
	failErr   error
	pos       int
	closed    bool
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos < len(s.fragments) {
		s.pos++
		return s.fragments[s.pos-1], nil
	}
	if s.failErr != nil {
		return "", s.failErr
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

var errBackendDown = errors.New("backend down")

// failingKV fails reads and/or writes on demand.
type failingKV struct {
	*MemoryStore
	failGet bool
	failSet bool
}

func (f *failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errBackendDown
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errBackendDown
	}
	return f.MemoryStore.Set(ctx, key, value)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// stallingGenerator yields its fragments and then blocks until the stream is
// closed. With blockStart set, Generate itself waits for ctx.
type stallingGenerator struct {
	fragments  []string
	blockStart bool

	mu     sync.Mutex
	ctx    context.Context
	stream *stallingStream
}

func (g *stallingGenerator) Generate(ctx context.Context, _, _ string) (FragmentStream, error) {
	g.mu.Lock()
	g.ctx = ctx
	g.mu.Unlock()
	if g.blockStart {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := &stallingStream{fragments: g.fragments, release: make(chan struct{})}
	g.mu.Lock()
	g.stream = s
	g.mu.Unlock()
	return s, nil
}

func (g *stallingGenerator) generateCtx() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctx
}

type stallingStream struct {
	fragments []string
	pos       int
	release   chan struct{}
	closeOnce sync.Once
}

func (s *stallingStream) Recv() (string, error) {
	if s.pos < len(s.fragments) {
		s.pos++
		return s.fragments[s.pos-1], nil
	}
	<-s.release
	return "", io.ErrUnexpectedEOF
}

func (s *stallingStream) Close() error {
	s.closeOnce.Do(func() { close(s.release) })
	return nil
}

func (s *stallingStream) released() bool {
	select {
	case <-s.release:
		return true
	default:
		return false
	}
}
