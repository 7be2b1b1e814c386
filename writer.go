package isardb

import (
	"context"
	"log/slog"

	"github.com/kvdoc/isardb/internal/kv"
	"github.com/kvdoc/isardb/isarerr"
	"github.com/kvdoc/isardb/txn"
)

// writeJob is one enqueued write: the closure to run against the shared
// write transaction, and the channel its outcome is reported back on.
type writeJob struct {
	ctx   context.Context
	fn    func(tx kv.RwTx) error
	reply chan error
}

// writer is the single background goroutine that owns every write
// transaction against an instance, draining writeJobs from a buffered
// channel strictly in submission order. This is the Go analogue of the
// teacher's single-writer transaction manager: only one goroutine ever
// touches the KV environment's write side, so no locking is needed
// around kv.RwTx itself.
type writer struct {
	env    kv.Env
	logger *slog.Logger
	jobs   chan writeJob
	done   chan struct{}
}

func newWriter(env kv.Env, logger *slog.Logger) *writer {
	w := &writer{env: env, logger: logger, jobs: make(chan writeJob, 64), done: make(chan struct{})}
	go w.run()
	return w
}

func (w *writer) run() {
	defer close(w.done)
	for job := range w.jobs {
		job.reply <- w.runOne(job)
	}
}

// runOne opens one write transaction, hands its raw kv.RwTx to the
// enqueued callback via the take/put protocol (so a nested operation like
// Collection.Put can juggle the primary store, its indexes, and its links
// as one unit without a second writer ever interleaving), then commits or
// aborts based on the callback's outcome.
func (w *writer) runOne(job writeJob) error {
	if err := job.ctx.Err(); err != nil {
		return err
	}

	rw, err := w.env.BeginWrite(job.ctx)
	if err != nil {
		w.logger.Warn("isardb: begin write transaction failed", "error", err)
		return err
	}
	tx := txn.NewWrite(rw)

	inner, err := tx.TakeWriteTxn()
	if err != nil {
		tx.Abort()
		return err
	}
	fnErr := job.fn(inner)
	tx.PutWriteTxn(fnErr)

	if fnErr != nil {
		tx.Abort()
		w.logger.Debug("isardb: write transaction aborted", "error", fnErr)
		return fnErr
	}
	if err := tx.Commit(); err != nil {
		w.logger.Warn("isardb: write transaction commit failed", "error", err)
		return err
	}
	return nil
}

// submit enqueues fn and blocks until the writer goroutine has run it to
// completion, returning whatever error fn or the commit produced. Jobs
// are served strictly FIFO, so two concurrent submit calls never
// interleave their writes.
func (w *writer) submit(ctx context.Context, fn func(tx kv.RwTx) error) error {
	reply := make(chan error, 1)
	select {
	case w.jobs <- writeJob{ctx: ctx, fn: fn, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return isarerr.New(isarerr.IllegalArgument, "isardb: instance is closed")
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop closes the job queue and waits for the writer goroutine to drain
// every already-submitted job before returning.
func (w *writer) stop() {
	close(w.jobs)
	<-w.done
}
