// Package agenttest provides an in-memory Launcher for tests.
package agenttest

import (
	"context"
	"errors"
	"sync"

	"webswarm/internal/agent"
)

// Reply is what a scripted session returns for a slot.
type Reply struct {
	Output  string
	Err     error
	Panic   any
	OpenErr error
	// Wait blocks Run until the channel is closed or ctx ends.
	Wait <-chan struct{}
}

type Call struct {
	Options agent.SessionOptions
	Task    string
}

// Launcher answers per slot id; slots without a scripted reply use Default.
// Queue, when set, is consumed one reply per opened session first.
type Launcher struct {
	Replies map[string]Reply
	Default Reply
	Queue   []Reply

	mu     sync.Mutex
	calls  []Call
	opened int
	closed int
}

func (l *Launcher) NewSession(_ context.Context, opts agent.SessionOptions) (agent.Session, error) {
	reply := l.reply(opts.SlotID)
	if reply.OpenErr != nil {
		return nil, reply.OpenErr
	}
	l.mu.Lock()
	l.opened++
	l.mu.Unlock()
	return &session{launcher: l, opts: opts, reply: reply}, nil
}

func (l *Launcher) reply(slot string) Reply {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.Queue) > 0 {
		next := l.Queue[0]
		l.Queue = l.Queue[1:]
		return next
	}
	if r, ok := l.Replies[slot]; ok {
		return r
	}
	return l.Default
}

func (l *Launcher) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.calls...)
}

func (l *Launcher) Opened() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opened
}

func (l *Launcher) Closed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type session struct {
	launcher *Launcher
	opts     agent.SessionOptions
	reply    Reply
	once     sync.Once
}

func (s *session) Run(ctx context.Context, task string) (string, error) {
	s.launcher.mu.Lock()
	s.launcher.calls = append(s.launcher.calls, Call{Options: s.opts, Task: task})
	s.launcher.mu.Unlock()

	if s.reply.Wait != nil {
		select {
		case <-s.reply.Wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.reply.Panic != nil {
		panic(s.reply.Panic)
	}
	return s.reply.Output, s.reply.Err
}

func (s *session) Close() error {
	closed := false
	s.once.Do(func() {
		s.launcher.mu.Lock()
		s.launcher.closed++
		s.launcher.mu.Unlock()
		closed = true
	})
	if !closed {
		return errors.New("session already closed")
	}
	return nil
}
