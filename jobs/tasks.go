package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDocumentSend delivers a sent document to its client by e-mail.
	TaskDocumentSend = "documents:send"
	// TaskTotalsReconcile recomputes persisted totals from document lines.
	TaskTotalsReconcile = "documents:totals-reconcile"
)

// DocumentSendPayload identifies the document to deliver.
type DocumentSendPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
	Number     string    `json:"document_number"`
}

// TotalsReconcilePayload scopes a reconcile run. Empty Types means every type.
type TotalsReconcilePayload struct {
	Types []string `json:"types,omitempty"`
}

// NewDocumentSendTask constructs an Asynq task.
func NewDocumentSendTask(payload DocumentSendPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentSend, data, asynq.MaxRetry(5)), nil
}

// NewTotalsReconcileTask constructs an Asynq task.
func NewTotalsReconcileTask(payload TotalsReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTotalsReconcile, data, asynq.MaxRetry(1)), nil
}
