package remote

import (
	"context"
	"errors"
)

// Exit codes with a meaning of their own for status commands.
const (
	// ExitNullExit is reported when the remote side closed the channel
	// without an exit status.
	ExitNullExit = 100
	// ExitKilled is reported when a watch command was killed on purpose.
	ExitKilled = 143
	// ExitConnectionLost usually means the transport went away.
	ExitConnectionLost = 255
)

// ErrNotConnected is returned when a command is issued on a host without a
// transport.
var ErrNotConnected = errors.New("remote: not connected")

// Command is a named command line executed on a host.
type Command struct {
	Name string
	Line string
}

// Event is one of Chunk, Success or Failure.
type Event interface {
	isEvent()
}

// Chunk carries incremental output of a streaming command.
type Chunk struct {
	Text string
}

// Success terminates a command that exited with status 0.
type Success struct {
	Output string
}

// Failure terminates a command that exited with a non-zero status or could
// not run at all.
type Failure struct {
	Output   string
	ExitCode int
	Err      error
}

func (Chunk) isEvent()   {}
func (Success) isEvent() {}
func (Failure) isEvent() {}

// Result is the terminal event of a synchronous run.
type Result struct {
	Output   string
	ExitCode int
	Err      error
}

// OK reports whether the command exited with status 0.
func (r Result) OK() bool { return r.Err == nil && r.ExitCode == 0 }

// Runner executes commands on one remote host.
type Runner interface {
	// Run executes cmd and collects its whole output.
	Run(ctx context.Context, cmd Command) Result
	// Stream executes cmd and delivers output chunks to fn as they arrive.
	// The last event passed to fn is always a Success or a Failure.
	// Cancelling ctx kills the remote command.
	Stream(ctx context.Context, cmd Command, fn func(Event))
	// Reconnect drops the current transport so the next call dials again.
	Reconnect() error
	Close() error
}

// Terminal converts a terminal event into a Result. Chunks yield a zero Result.
func Terminal(ev Event) Result {
	switch e := ev.(type) {
	case Success:
		return Result{Output: e.Output}
	case Failure:
		return Result{Output: e.Output, ExitCode: e.ExitCode, Err: e.Err}
	default:
		return Result{}
	}
}
