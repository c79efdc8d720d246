// Package safego provides panic-recovering goroutine launchers for background
// work such as asynchronous audit writes and the retention job.
package safego

import (
	"context"
	"log/slog"
	"sync"
)

// Go launches fn in a new goroutine. A panic in fn is recovered and logged
// instead of crashing the process.
func Go(fn func()) {
	go func() {
		defer recoverAndLog("")
		fn()
	}()
}

func recoverAndLog(name string) {
	if r := recover(); r != nil {
		slog.Error("recovered panic in background goroutine", "task", name, "panic", r)
	}
}

// Group tracks goroutines so shutdown can wait for in-flight work.
// The zero value is ready to use.
type Group struct {
	wg sync.WaitGroup
}

// Go launches fn like the package-level Go and tracks it in the group.
// name identifies the task in panic logs.
func (g *Group) Go(name string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer recoverAndLog(name)
		fn()
	}()
}

// Wait blocks until every tracked goroutine has returned or ctx is done.
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
