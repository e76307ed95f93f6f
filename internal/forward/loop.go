// ABOUTME: Cron-driven poll loop running one cycle immediately and then on a fixed interval
// ABOUTME: Overlapping cycles are skipped and a panicking cycle is recovered and logged

package forward

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "err", err)...)
}

// Loop runs cycles until ctx is cancelled. The first cycle starts
// immediately; later ones follow every interval (rounded to whole seconds).
func (f *Forwarder) Loop(ctx context.Context, interval time.Duration) error {
	logger := cronLogger{l: slog.Default().With("component", "cron")}
	chain := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))

	job := chain.Then(cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		// Errors are logged inside Cycle; the next tick retries.
		_, _ = f.Cycle(ctx)
	}))

	c := cron.New(cron.WithLogger(logger))
	c.Schedule(cron.Every(interval), job)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		job.Run()
	}()

	c.Start()
	slog.Info("forwarding", "feed_url", f.feedURL, "interval", interval, "policy", f.policy.Name())

	<-ctx.Done()
	slog.Info("shutting down")

	<-c.Stop().Done()
	wg.Wait()
	return nil
}
