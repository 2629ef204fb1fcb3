// Package safego provides panic-recovering goroutine launchers for background work.
package safego

import (
	"context"
	"log/slog"
	"sync"
)

// Go launches fn in a new goroutine. A panic in fn is recovered and logged rather
// than crashing the process.
func Go(fn func()) {
	go run(fn)
}

func run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in background goroutine", "panic", r)
		}
	}()
	fn()
}

// Group tracks fire-and-forget goroutines so shutdown can drain them.
// The zero value is ready to use.
type Group struct {
	wg sync.WaitGroup
}

// Go launches fn like the package-level Go and records it in the group.
func (g *Group) Go(fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		run(fn)
	}()
}

// Wait blocks until every goroutine started through the group has returned or
// ctx is done. It reports ctx.Err() when the deadline wins.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
