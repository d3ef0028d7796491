// Package engine drives one external UCI chess engine process per Worker.
package engine

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrCancelled rejects an evaluation that was stopped or superseded.
	ErrCancelled = errors.New("engine: evaluation cancelled")

	// ErrProcessExited means the engine's output closed.
	ErrProcessExited = errors.New("engine: process exited")

	// ErrUnresponsive means the engine did not acknowledge stop within StopGrace.
	ErrUnresponsive = errors.New("engine: process unresponsive")

	// ErrDisposed is returned by calls on a disposed worker.
	ErrDisposed = errors.New("engine: worker disposed")
)

// Process is a running engine: Write feeds its stdin, Read drains its stdout,
// Close terminates it.
type Process interface {
	io.ReadWriteCloser
}

// Launcher starts engine processes.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// Prober is implemented by launchers that can check whether an engine exists
// on this host without starting a pool worker.
type Prober interface {
	Probe(ctx context.Context) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Process, error)

// Launch implements Launcher.
func (f LauncherFunc) Launch(ctx context.Context) (Process, error) { return f(ctx) }

// State is a worker's lifecycle state.
type State int32

const (
	StateSpawning State = iota
	StateReady
	StateEvaluating
	StateStopped
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateReady:
		return "ready"
	case StateEvaluating:
		return "evaluating"
	case StateStopped:
		return "stopped"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}
