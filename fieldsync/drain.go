package fieldsync

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Engine drains the local queue when connectivity is restored. Operations
// for the same entity replay strictly in enqueue order; different entities
// drain concurrently.
type Engine struct {
	store    *Store
	replayer Replayer
	logger   *logrus.Logger
}

func NewEngine(store *Store, replayer Replayer, logger *logrus.Logger) *Engine {
	return &Engine{store: store, replayer: replayer, logger: logger}
}

// Drain replays every eligible queued operation. A retryable failure stops
// the rest of that entity's chain for this pass (later operations may
// depend on earlier ones); a terminal failure bumps the retry count to the
// ceiling and the chain continues. Operations already at the ceiling are
// skipped until retried or cleared manually.
func (e *Engine) Drain(ctx context.Context) error {
	ops, err := e.store.ListAll()
	if err != nil {
		return err
	}

	chains := make(map[string][]QueuedOperation)
	var order []string
	for _, op := range ops {
		if op.Failed() {
			continue
		}
		if _, seen := chains[op.Entity]; !seen {
			order = append(order, op.Entity)
		}
		chains[op.Entity] = append(chains[op.Entity], op)
	}

	var wg sync.WaitGroup
	for _, entity := range order {
		wg.Add(1)
		go func(chain []QueuedOperation) {
			defer wg.Done()
			e.drainChain(ctx, chain)
		}(chains[entity])
	}
	wg.Wait()
	return ctx.Err()
}

func (e *Engine) drainChain(ctx context.Context, chain []QueuedOperation) {
	for i := range chain {
		if ctx.Err() != nil {
			return
		}
		op := &chain[i]
		terminal, err := e.replayOne(ctx, op)
		if err != nil && !terminal {
			// Transient fault: stop this chain, later operations wait for
			// the next drain so ordering holds.
			return
		}
	}
}

// replayOne attempts a single operation and updates its queue record.
// terminal reports whether the failure consumed the operation's retries.
func (e *Engine) replayOne(ctx context.Context, op *QueuedOperation) (terminal bool, err error) {
	err = e.replayer.Replay(ctx, op)
	if err == nil {
		if removeErr := e.store.Remove(op.ID); removeErr != nil {
			e.logger.WithFields(logrus.Fields{
				"module":       "fieldsync",
				"operation_id": op.ID,
			}).Error("failed to remove replayed operation: " + removeErr.Error())
		}
		return false, nil
	}

	msg := err.Error()
	retryCount := op.RetryCount + 1

	var remote *RemoteError
	if errors.As(err, &remote) && !remote.Retryable {
		// Terminal rejection: burn the remaining retries so the operation
		// goes straight to the failed set instead of replaying a request
		// the backend will never accept.
		retryCount = RetryCeiling
		terminal = true
	}

	e.logger.WithFields(logrus.Fields{
		"module":       "fieldsync",
		"operation_id": op.ID,
		"entity":       op.Entity,
		"kind":         string(op.Kind),
		"retry_count":  retryCount,
		"terminal":     terminal,
	}).Warn("operation replay failed: " + msg)

	if updateErr := e.store.Update(op.ID, retryCount, &msg); updateErr != nil {
		e.logger.WithFields(logrus.Fields{
			"module":       "fieldsync",
			"operation_id": op.ID,
		}).Error("failed to record replay failure: " + updateErr.Error())
	}
	op.RetryCount = retryCount
	op.LastError = &msg
	return terminal, err
}

// RetryOperation replays one operation immediately, regardless of its
// retry count. Used by the manual "retry" action on failed operations.
func (e *Engine) RetryOperation(ctx context.Context, id string) error {
	op, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if op == nil {
		return errors.New("operation not found")
	}
	_, err = e.replayOne(ctx, op)
	return err
}

// ClearFailedOperations drops every operation at or beyond the retry
// ceiling and returns how many were removed.
func (e *Engine) ClearFailedOperations() (int, error) {
	return e.store.ClearFailed()
}
