package services

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/metrics"
	"chatrelay/models"
)

const (
	// EndOfResponse is the payload of the terminal response_end event.
	EndOfResponse = "End of response"
	// GenerationFailedNotice is sent when the generator breaks before completing.
	GenerationFailedNotice = "Failed to generate a response"

	// DefaultIdleTimeout bounds the wait for the next fragment.
	DefaultIdleTimeout = 60 * time.Second

	commitTimeout = 10 * time.Second
)

// Emitter delivers a named event to one live connection.
type Emitter interface {
	Emit(connID, event string, payload any) error
}

type StreamState int

const (
	StateInit StreamState = iota
	StateStreaming
	StateComplete
	StateFailed
)

func (s StreamState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StreamRequest binds one prompt/reply cycle to a connection and session.
type StreamRequest struct {
	ConnectionID string
	SessionID    string
	Model        string
	Context      string
}

// LiveStream is the state of one in-flight reply.
type LiveStream struct {
	ConnectionID string
	SessionID    string
	Model        string
	State        StreamState
	Fragments    int
	Err          error

	reply     strings.Builder
	committed bool
}

// Reply returns the text accumulated so far. It is empty after a failure.
func (ls *LiveStream) Reply() string {
	return ls.reply.String()
}

// Orchestrator drives the generator for a LiveStream, relays each fragment to
// the originating connection and commits the full reply once.
type Orchestrator struct {
	generator Generator
	history   *HistoryStore
	emitter   Emitter
	logger    zerolog.Logger

	// yield runs after every relayed fragment so other streams make progress.
	yield func()
	// idleTimeout fails a stream that goes this long without producing; 0 disables it.
	idleTimeout time.Duration
}

func NewOrchestrator(generator Generator, history *HistoryStore, emitter Emitter, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		history:   history,
		emitter:   emitter,
		logger:    logger,
		yield:       runtime.Gosched,
		idleTimeout: DefaultIdleTimeout,
	}
}

// WithIdleTimeout sets how long Generate and each Recv may take before the
// stream is abandoned. Zero waits forever.
func (o *Orchestrator) WithIdleTimeout(d time.Duration) *Orchestrator {
	o.idleTimeout = d
	return o
}

// Run streams one reply. The returned error is the generator failure or the
// commit failure; the LiveStream is always returned in its final state.
func (o *Orchestrator) Run(ctx context.Context, req StreamRequest) (*LiveStream, error) {
	ls := &LiveStream{
		ConnectionID: req.ConnectionID,
		SessionID:    req.SessionID,
		Model:        req.Model,
		State:        StateInit,
	}
	log := o.logger.With().
		Str("conn", req.ConnectionID).
		Str("session", req.SessionID).
		Str("model", req.Model).
		Logger()

	start := time.Now()
	defer func() {
		metrics.StreamsTotal.WithLabelValues(ls.State.String()).Inc()
		metrics.StreamDuration.Observe(time.Since(start).Seconds())
	}()

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := o.generate(genCtx, cancel, req)
	if err != nil {
		return ls, o.fail(ls, log, err)
	}
	defer stream.Close()

	ls.State = StateStreaming
	log.Debug().Msg("stream started")

	for {
		fragment, err := o.recv(stream, cancel)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ls, o.fail(ls, log, err)
		}

		ls.reply.WriteString(fragment)
		ls.Fragments++
		o.deliver(log, ls.ConnectionID, models.EventResponse, fragment)
		metrics.FragmentsRelayed.Inc()

		o.yield()
	}

	ls.State = StateComplete
	o.deliver(log, ls.ConnectionID, models.EventResponseEnd, EndOfResponse)

	if err := o.commit(ctx, ls); err != nil {
		ls.Err = err
		log.Error().Err(err).Msg("failed to commit reply")
		return ls, err
	}

	log.Info().
		Int("fragments", ls.Fragments).
		Int("chars", ls.reply.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("stream complete")
	return ls, nil
}

// generate starts the generator, cancelling genCtx if it does not answer
// within the idle timeout.
func (o *Orchestrator) generate(genCtx context.Context, cancel context.CancelFunc, req StreamRequest) (FragmentStream, error) {
	if o.idleTimeout <= 0 {
		return o.generator.Generate(genCtx, req.Model, req.Context)
	}

	timer := time.AfterFunc(o.idleTimeout, cancel)
	stream, err := o.generator.Generate(genCtx, req.Model, req.Context)
	if !timer.Stop() {
		if stream != nil {
			_ = stream.Close()
		}
		return nil, ErrGeneratorIdle
	}
	return stream, err
}

type recvResult struct {
	fragment string
	err      error
}

// recv waits for the next fragment. On idle expiry the generator context is
// cancelled; the pending Recv is released when Run closes the stream.
func (o *Orchestrator) recv(stream FragmentStream, cancel context.CancelFunc) (string, error) {
	if o.idleTimeout <= 0 {
		return stream.Recv()
	}

	ch := make(chan recvResult, 1)
	go func() {
		fragment, err := stream.Recv()
		ch <- recvResult{fragment: fragment, err: err}
	}()

	timer := time.NewTimer(o.idleTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.fragment, r.err
	case <-timer.C:
		cancel()
		return "", ErrGeneratorIdle
	}
}

func (o *Orchestrator) commit(ctx context.Context, ls *LiveStream) error {
	if ls.committed {
		return nil
	}
	ls.committed = true

	// The client may already be gone; the reply is still recorded.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	return o.history.Append(commitCtx, ls.SessionID, models.Turn{
		Role:    models.RoleBot,
		Content: ls.reply.String(),
	})
}

func (o *Orchestrator) fail(ls *LiveStream, log zerolog.Logger, err error) error {
	ls.State = StateFailed
	ls.Err = err
	ls.reply.Reset()

	log.Error().Err(err).Int("fragments", ls.Fragments).Msg("stream failed")
	o.deliver(log, ls.ConnectionID, models.EventMessage, GenerationFailedNotice)
	return err
}

func (o *Orchestrator) deliver(log zerolog.Logger, connID, event, message string) {
	if err := o.emitter.Emit(connID, event, models.MessagePayload{Message: message}); err != nil {
		metrics.DeliveryFailures.Inc()
		log.Debug().Err(err).Str("event", event).Msg("delivery failed")
	}
}
