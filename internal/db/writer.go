package db

import (
	"context"
	"database/sql"
)

type TxFn func(ctx context.Context, tx *sql.Tx) error

type writeJob struct {
	ctx context.Context
	fn  TxFn
	ack chan error
}

// Writer serializes all database writes through one goroutine.  For the
// audit log this doubles as the durable queue: an append is enqueued,
// executed in its own transaction, and the caller blocks until the commit
// is acknowledged — which is what lets the orchestrator guarantee the audit
// row exists before the gate arm moves.
type Writer struct {
	db   *sql.DB
	jobs chan writeJob
	done chan struct{}
}

func NewWriter(db *sql.DB) *Writer {
	w := &Writer{
		db:   db,
		jobs: make(chan writeJob, 256),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) Close() {
	close(w.jobs)
	<-w.done
}

// Do runs fn in a transaction on the writer goroutine and waits for the
// commit.  If the caller's context expires while the job is queued or
// executing, Do returns the context error; the transaction itself still
// runs to completion and its result is discarded via the buffered ack.
func (w *Writer) Do(ctx context.Context, fn TxFn) error {
	ack := make(chan error, 1)

	select {
	case w.jobs <- writeJob{ctx: ctx, fn: fn, ack: ack}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run() {
	defer close(w.done)

	for j := range w.jobs {
		j.ack <- w.exec(j.ctx, j.fn)
	}
}

func (w *Writer) exec(ctx context.Context, fn TxFn) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
