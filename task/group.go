// Package task runs the long-lived tasks of a program, such as the outbox
// processor and diagnostics server of catalogd, as a unit: they start
// together, the first failure stops all of them, and the program waits
// on their collective exit.
package task

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Func is a task. It must return promptly once its Context is cancelled.
type Func func(context.Context) error

// Group runs queued Funcs concurrently. Its Context is cancelled when any
// Func returns an error, when Cancel is called, or when the parent Context
// is cancelled. A Func which returns context.Canceled after the Group is
// cancelled has exited cleanly.
//
// Queue, GoRun and Wait are called from a single goroutine, in that order.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	queued []namedFunc
	state  int
}

type namedFunc struct {
	name string
	fn   Func
}

const (
	queueing = iota
	running
)

// NewGroup returns an empty Group deriving from the parent Context.
func NewGroup(parent context.Context) *Group {
	var ctx, cancel = context.WithCancel(parent)
	var eg, egCtx = errgroup.WithContext(ctx)
	return &Group{ctx: egCtx, cancel: cancel, eg: eg}
}

// Context of the Group, which is passed to each Func.
func (g *Group) Context() context.Context { return g.ctx }

// Cancel the Group, signaling all Funcs to exit.
func (g *Group) Cancel() { g.cancel() }

// Queue a named Func. It panics if the Group is already running.
func (g *Group) Queue(name string, fn Func) {
	if g.state != queueing {
		panic("task.Group: Queue called after GoRun")
	}
	g.queued = append(g.queued, namedFunc{name: name, fn: fn})
}

// GoRun starts all queued Funcs. It panics if called twice.
func (g *Group) GoRun() {
	if g.state != queueing {
		panic("task.Group: GoRun called twice")
	}
	g.state = running

	for _, nf := range g.queued {
		var nf = nf
		g.eg.Go(func() error { return g.run(nf) })
	}
	g.queued = nil
}

func (g *Group) run(nf namedFunc) error {
	var started = time.Now()
	log.WithField("task", nf.name).Debug("task starting")

	var err = nf.fn(g.ctx)
	if errors.Is(err, context.Canceled) && g.ctx.Err() != nil {
		err = nil
	}
	log.WithFields(log.Fields{
		"task":    nf.name,
		"elapsed": time.Since(started),
		"err":     err,
	}).Debug("task exited")

	return errors.WithMessage(err, nf.name)
}

// Wait for all Funcs to exit, returning the first error. It panics if
// GoRun wasn't called.
func (g *Group) Wait() error {
	if g.state != running {
		panic("task.Group: Wait called before GoRun")
	}
	defer g.cancel()
	return g.eg.Wait()
}
