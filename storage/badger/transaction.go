// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/storekit/storage"
)

type txOutcome int

const (
	txPending txOutcome = iota
	txCompleted
	txAborted
	txFailed
)

// operation is one queued request and the work that settles it.
type operation struct {
	req *request
	fn  func(txn *badger.Txn) (any, error)
}

// transaction executes its queued operations in order on a single pool worker
// against one Badger transaction.
type transaction struct {
	conn  *connection
	scope map[string]*storage.StoreMeta
	mode  storage.TxMode

	mu              sync.Mutex
	cond            *sync.Cond
	queue           []*operation
	outstanding     int
	commitRequested bool
	abortCause      error
	finished        bool

	outcome    txOutcome
	err        error
	onComplete []func()
	onAbort    []func(error)
	onError    []func(error)
	done       chan struct{}
}

var _ storage.Transaction = (*transaction)(nil)

func newTransaction(conn *connection, scope map[string]*storage.StoreMeta, mode storage.TxMode) *transaction {
	t := &transaction{
		conn:  conn,
		scope: scope,
		mode:  mode,
		done:  make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *transaction) Mode() storage.TxMode {
	return t.mode
}

func (t *transaction) ObjectStore(name string) (storage.ObjectStore, error) {
	meta, ok := t.scope[name]
	if !ok {
		return nil, fmt.Errorf("%w: object store %q is not in the transaction scope", storage.ErrNotFound, name)
	}
	t.mu.Lock()
	finished := t.finished
	t.mu.Unlock()
	if finished {
		return nil, storage.ErrTransactionInactive
	}
	return &objectStore{tx: t, meta: meta}, nil
}

func (t *transaction) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commitRequested = true
	t.cond.Broadcast()
}

func (t *transaction) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || t.abortCause != nil {
		return
	}
	t.abortCause = storage.ErrAborted
	t.cond.Broadcast()
}

func (t *transaction) OnComplete(fn func()) {
	t.mu.Lock()
	if t.outcome == txPending {
		t.onComplete = append(t.onComplete, fn)
		t.mu.Unlock()
		return
	}
	outcome := t.outcome
	t.mu.Unlock()
	if outcome == txCompleted {
		fn()
	}
}

func (t *transaction) OnAbort(fn func(err error)) {
	t.mu.Lock()
	if t.outcome == txPending {
		t.onAbort = append(t.onAbort, fn)
		t.mu.Unlock()
		return
	}
	outcome, err := t.outcome, t.err
	t.mu.Unlock()
	if outcome == txAborted {
		fn(err)
	}
}

func (t *transaction) OnError(fn func(err error)) {
	t.mu.Lock()
	if t.outcome == txPending {
		t.onError = append(t.onError, fn)
		t.mu.Unlock()
		return
	}
	outcome, err := t.outcome, t.err
	t.mu.Unlock()
	if outcome == txFailed {
		fn(err)
	}
}

func (t *transaction) Done() <-chan struct{} {
	return t.done
}

func (t *transaction) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// activeLocked reports whether new requests may be issued. t.mu must be held.
func (t *transaction) activeLocked() bool {
	if t.finished || t.abortCause != nil {
		return false
	}
	return !t.commitRequested || t.outstanding > 0
}

// enqueue issues a request that runs fn on the executor.
func (t *transaction) enqueue(fn func(txn *badger.Txn) (any, error)) storage.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.activeLocked() {
		return failedRequest(storage.ErrTransactionInactive)
	}
	req := newRequest()
	t.queue = append(t.queue, &operation{req: req, fn: fn})
	t.outstanding++
	t.cond.Broadcast()
	return req
}

// run is the executor loop. A failed operation aborts the transaction with its error.
func (t *transaction) run() {
	defer t.conn.transactionDone()

	if t.mode == storage.ReadWrite {
		t.conn.db.writeMu.Lock()
		defer t.conn.db.writeMu.Unlock()
	}
	txn := t.conn.db.backend.db.NewTransaction(t.mode == storage.ReadWrite)
	defer txn.Discard()

	for {
		t.mu.Lock()
		for len(t.queue) == 0 && !t.commitRequested && t.abortCause == nil {
			t.cond.Wait()
		}

		if t.abortCause != nil {
			cause, pending := t.abortCause, t.queue
			t.queue = nil
			t.finished = true
			t.mu.Unlock()
			for _, op := range pending {
				op.req.settle(nil, storage.ErrAborted)
			}
			t.finish(txAborted, cause)
			return
		}

		if len(t.queue) == 0 {
			t.finished = true
			t.mu.Unlock()
			if err := txn.Commit(); err != nil {
				t.finish(txFailed, err)
				return
			}
			t.finish(txCompleted, nil)
			return
		}

		op := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()

		result, err := op.fn(txn)
		op.req.settle(result, err)

		t.mu.Lock()
		t.outstanding--
		if err != nil && t.abortCause == nil {
			t.abortCause = err
		}
		t.mu.Unlock()
	}
}

func (t *transaction) finish(outcome txOutcome, err error) {
	t.mu.Lock()
	t.outcome, t.err = outcome, err
	onComplete, onAbort, onError := t.onComplete, t.onAbort, t.onError
	t.onComplete, t.onAbort, t.onError = nil, nil, nil
	t.mu.Unlock()

	logger := t.conn.db.backend.logger
	switch outcome {
	case txCompleted:
		for _, fn := range onComplete {
			fn()
		}
	case txAborted:
		logger.Debug("transaction aborted", "database", t.conn.db.name, "mode", t.mode, "cause", err)
		for _, fn := range onAbort {
			fn(err)
		}
	case txFailed:
		logger.Warn("transaction commit failed", "database", t.conn.db.name, "mode", t.mode, "error", err)
		for _, fn := range onError {
			fn(err)
		}
	}
	close(t.done)
}
