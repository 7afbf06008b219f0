package agent

import (
	"context"
	"errors"
)

var ErrStepLimit = errors.New("agent reached its step limit before finishing")

type SessionOptions struct {
	SlotID     string
	ProfileDir string
	Headless   bool
	FlashMode  bool
	MaxSteps   int
}

// Session is one automation lane: an isolated browser driven by an LLM.
type Session interface {
	Run(ctx context.Context, task string) (string, error)
	Close() error
}

type Launcher interface {
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}

type LauncherFunc func(ctx context.Context, opts SessionOptions) (Session, error)

func (f LauncherFunc) NewSession(ctx context.Context, opts SessionOptions) (Session, error) {
	return f(ctx, opts)
}
