// Package fieldsync is the field-device side of offline-first sync: a
// durable local operation queue, a connectivity monitor, and a drain
// engine that replays queued mutations against the backend exactly once.
package fieldsync

import (
	"encoding/json"
	"fmt"
	"time"
)

// RetryCeiling is how many automatic replay attempts an operation gets
// before it is surfaced as failed and requires manual retry or clearing.
const RetryCeiling = 3

type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

// QueuedOperation is one buffered mutation. The payload is opaque to the
// queue; the replay client maps (Entity, Kind) to the remote call.
type QueuedOperation struct {
	ID         string          `json:"id"`
	Entity     string          `json:"entity"`
	Kind       OperationKind   `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
	LastError  *string         `json:"last_error"`
}

// Failed reports whether the operation has exhausted its automatic
// retries. Failed operations stay in the store for manual handling.
func (op *QueuedOperation) Failed() bool {
	return op.RetryCount >= RetryCeiling
}

// RemoteError is the structured failure returned by the remote mutation
// API. Retryable distinguishes transient faults from terminal rejections.
type RemoteError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
