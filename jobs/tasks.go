package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sokhunov/Distribution-Interface/internal/shared"
)

const (
	// QueueDefault is the queue synchronizer tasks run on.
	QueueDefault = "default"
	// TaskGoodsSync reconciles the goods catalog.
	TaskGoodsSync = "distribution:goods_sync"
	// TaskSalesSync extends the sales ledger from its watermark.
	TaskSalesSync = "distribution:sales_sync"
)

// SyncPayload identifies who requested a synchronizer run.
type SyncPayload struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewGoodsSyncTask constructs a goods reconciliation task.
func NewGoodsSyncTask(requestedBy string) (*asynq.Task, error) {
	return newSyncTask(TaskGoodsSync, requestedBy)
}

// NewSalesSyncTask constructs an incremental sales task.
func NewSalesSyncTask(requestedBy string) (*asynq.Task, error) {
	return newSyncTask(TaskSalesSync, requestedBy)
}

func newSyncTask(taskType, requestedBy string) (*asynq.Task, error) {
	data, err := json.Marshal(SyncPayload{
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data, asynq.Queue(QueueDefault), asynq.MaxRetry(0), asynq.Timeout(shared.SyncRunTimeout)), nil
}

func decodeSyncPayload(t *asynq.Task) (SyncPayload, error) {
	var payload SyncPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	err := json.Unmarshal(t.Payload(), &payload)
	return payload, err
}
