package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink is an append-only destination for audit entries.
type Sink interface {
	Append(ctx context.Context, entry *Entry) error
}

// Recorder fans audit entries out to one or more sinks, fire-and-forget.
// The triggering administrative action never waits on, and never fails
// because of, an audit write: sink failures are logged locally and dropped.
type Recorder struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewRecorder creates a Recorder writing to the given sinks. Each write is
// bounded by timeout.
func NewRecorder(logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Recorder{sinks: sinks, timeout: timeout, logger: logger}
}

// Record asynchronously appends the entry to every sink. It returns
// immediately; failures are logged, never surfaced.
func (r *Recorder) Record(entry *Entry) {
	if entry == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		for _, sink := range r.sinks {
			if err := sink.Append(ctx, entry); err != nil {
				r.logger.Error("audit append failed",
					zap.String("action", entry.Action),
					zap.String("target_id", entry.TargetID),
					zap.Error(err))
			}
		}
	}()
}

// Wait blocks until all in-flight audit writes have completed. Intended
// for shutdown and tests.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
