package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"chatrelay/models"
	"chatrelay/services"
)

type emitted struct {
	ConnID  string
	Event   string
	Payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *recordingEmitter) Emit(connID, event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{ConnID: connID, Event: event, Payload: payload})
	return nil
}

func (e *recordingEmitter) forConn(connID string) []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emitted
	for _, ev := range e.events {
		if ev.ConnID == connID {
			out = append(out, ev)
		}
	}
	return out
}

func message(ev emitted) string {
	if p, ok := ev.Payload.(models.MessagePayload); ok {
		return p.Message
	}
	return ""
}

// countingKV records every call so tests can assert the store was untouched.
type countingKV struct {
	*services.MemoryStore
	mu     sync.Mutex
	gets   int
	sets   int
	broken bool
}

func (k *countingKV) Get(ctx context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	k.gets++
	broken := k.broken
	k.mu.Unlock()
	if broken {
		return "", false, errors.New("connection refused")
	}
	return k.MemoryStore.Get(ctx, key)
}

func (k *countingKV) Set(ctx context.Context, key, value string) error {
	k.mu.Lock()
	k.sets++
	broken := k.broken
	k.mu.Unlock()
	if broken {
		return errors.New("connection refused")
	}
	return k.MemoryStore.Set(ctx, key, value)
}

func (k *countingKV) calls() (int, int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.gets, k.sets
}

// fixedGenerator always yields the same fragments.
type fixedGenerator struct {
	fragments []string
	err       error

	mu       sync.Mutex
	payloads []string
	models   []string
}

func (g *fixedGenerator) Generate(_ context.Context, model, payload string) (services.FragmentStream, error) {
	g.mu.Lock()
	g.payloads = append(g.payloads, payload)
	g.models = append(g.models, model)
	g.mu.Unlock()
	return &sliceStream{fragments: g.fragments, err: g.err}, nil
}

// taggedGenerator yields "<tag>:<i>" fragments, where tag is the last line
// of the prompt instruction, so deliveries can be traced back to their stream.
type taggedGenerator struct {
	count int
}

func (g *taggedGenerator) Generate(_ context.Context, _, payload string) (services.FragmentStream, error) {
	tag := promptOf(payload)
	fragments := make([]string, g.count)
	for i := range fragments {
		fragments[i] = fmt.Sprintf("%s:%d ", tag, i)
	}
	return &sliceStream{fragments: fragments, gosched: true}, nil
}

func promptOf(payload string) string {
	const marker = "Respond to this prompt: "
	rest := payload[strings.LastIndex(payload, marker)+len(marker):]
	return strings.SplitN(rest, "\n", 2)[0]
}

type sliceStream struct {
	fragments []string
	err       error
	gosched   bool
	pos       int
}

func (s *sliceStream) Recv() (string, error) {
	if s.gosched {
		runtime.Gosched()
	}
	if s.pos < len(s.fragments) {
		s.pos++
		return s.fragments[s.pos-1], nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *sliceStream) Close() error { return nil }

func newController(gen services.Generator, kv services.KVStore, em services.Emitter) (*ChatController, *services.HistoryStore) {
	history := services.NewHistoryStore(kv, "chat:", nil)
	orch := services.NewOrchestrator(gen, history, em, zerolog.Nop())
	ctrl := NewChatController(history, orch, em, zerolog.Nop(), ChatOptions{Window: 25, DefaultModel: "llama3.2:latest"})
	return ctrl, history
}
