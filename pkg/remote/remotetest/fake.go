// Package remotetest provides a scripted remote.Runner for tests.
package remotetest

import (
	"context"
	"errors"
	"sync"

	"clusterwatch/pkg/remote"
)

var errNotScripted = errors.New("remotetest: command not scripted")

// Script describes one invocation of a streaming command.
type Script struct {
	Chunks []string
	// Final is delivered after the chunks. Nil means Success.
	Final remote.Event
	// Hold keeps the command running after the chunks until ctx is
	// cancelled, then reports Cancel.
	Hold bool
	// Cancel ends a held command. Nil means a Failure with ExitKilled.
	Cancel remote.Event
}

// Runner replays scripted results by command name. The last scripted entry
// for a name repeats once the queue is drained.
type Runner struct {
	mu         sync.Mutex
	runs       map[string][]remote.Result
	streams    map[string][]Script
	calls      map[string]int
	reconnects int
	closed     bool
	down       bool
}

var _ remote.Runner = (*Runner)(nil)

func New() *Runner {
	return &Runner{
		runs:    make(map[string][]remote.Result),
		streams: make(map[string][]Script),
		calls:   make(map[string]int),
	}
}

// OnRun queues results for Run(name).
func (r *Runner) OnRun(name string, results ...remote.Result) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[name] = append(r.runs[name], results...)
	return r
}

// OnStream queues scripts for Stream(name).
func (r *Runner) OnStream(name string, scripts ...Script) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[name] = append(r.streams[name], scripts...)
	return r
}

// SetDown makes every command fail with ExitConnectionLost.
func (r *Runner) SetDown(down bool) {
	r.mu.Lock()
	r.down = down
	r.mu.Unlock()
}

// Calls reports how many times the named command was issued.
func (r *Runner) Calls(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

// Reconnects reports how many times Reconnect was called.
func (r *Runner) Reconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconnects
}

func (r *Runner) Run(ctx context.Context, cmd remote.Command) remote.Result {
	r.mu.Lock()
	r.calls[cmd.Name]++
	if r.down {
		r.mu.Unlock()
		return remote.Result{ExitCode: remote.ExitConnectionLost, Err: remote.ErrNotConnected}
	}
	queue := r.runs[cmd.Name]
	if len(queue) == 0 {
		r.mu.Unlock()
		return remote.Result{ExitCode: 1, Err: errNotScripted}
	}
	res := queue[0]
	if len(queue) > 1 {
		r.runs[cmd.Name] = queue[1:]
	}
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return remote.Result{ExitCode: remote.ExitKilled, Err: err}
	}
	return res
}

func (r *Runner) Stream(ctx context.Context, cmd remote.Command, fn func(remote.Event)) {
	r.mu.Lock()
	r.calls[cmd.Name]++
	if r.down {
		r.mu.Unlock()
		fn(remote.Failure{ExitCode: remote.ExitConnectionLost, Err: remote.ErrNotConnected})
		return
	}
	queue := r.streams[cmd.Name]
	script := Script{Hold: true}
	if len(queue) > 0 {
		script = queue[0]
		if len(queue) > 1 {
			r.streams[cmd.Name] = queue[1:]
		}
	}
	r.mu.Unlock()

	for _, c := range script.Chunks {
		if ctx.Err() != nil {
			break
		}
		fn(remote.Chunk{Text: c})
	}
	if script.Hold {
		<-ctx.Done()
		if script.Cancel != nil {
			fn(script.Cancel)
			return
		}
		fn(remote.Failure{ExitCode: remote.ExitKilled, Err: ctx.Err()})
		return
	}
	if script.Final == nil {
		fn(remote.Success{})
		return
	}
	fn(script.Final)
}

func (r *Runner) Reconnect() error {
	r.mu.Lock()
	r.reconnects++
	r.mu.Unlock()
	return nil
}

func (r *Runner) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
