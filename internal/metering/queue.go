package metering

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/registry"
)

// TypeInvokeCount is the asynq task type for usage counting.
const TypeInvokeCount = "usage:invoke_count"

// InvokeCountPayload is the task payload for one counted invocation.
type InvokeCountPayload struct {
	InterfaceID int64 `json:"interface_id"`
	ConsumerID  int64 `json:"consumer_id"`
}

// NewInvokeCountTask builds the asynq task for one invocation.
func NewInvokeCountTask(interfaceID, consumerID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(InvokeCountPayload{
		InterfaceID: interfaceID,
		ConsumerID:  consumerID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal invoke count payload: %w", err)
	}
	return asynq.NewTask(TypeInvokeCount, payload, asynq.MaxRetry(5)), nil
}

// QueueRecorder enqueues usage counts onto the shared Redis, to be
// drained by the worker process. Queue failures are logged and
// dropped, matching the fire-and-forget contract.
type QueueRecorder struct {
	client *asynq.Client
	logger *zap.Logger
}

// NewQueueRecorder creates a recorder writing to the given broker.
func NewQueueRecorder(opt asynq.RedisConnOpt, logger *zap.Logger) *QueueRecorder {
	return &QueueRecorder{client: asynq.NewClient(opt), logger: logger}
}

// Close releases the broker connection.
func (r *QueueRecorder) Close() error { return r.client.Close() }

// RecordInvocation enqueues a usage-count task.
func (r *QueueRecorder) RecordInvocation(interfaceID, consumerID int64) {
	task, err := NewInvokeCountTask(interfaceID, consumerID)
	if err != nil {
		r.logger.Error("build invoke count task", zap.Error(err))
		return
	}
	if _, err := r.client.Enqueue(task); err != nil {
		r.logger.Error("enqueue invoke count task",
			zap.Int64("interface_id", interfaceID),
			zap.Int64("consumer_id", consumerID),
			zap.Error(err))
	}
}

// InvokeCountHandler is the worker-side handler draining usage-count
// tasks into the registry.
type InvokeCountHandler struct {
	reg    registry.Registry
	logger *zap.Logger
}

// NewInvokeCountHandler creates the handler with its dependencies.
func NewInvokeCountHandler(reg registry.Registry, logger *zap.Logger) *InvokeCountHandler {
	return &InvokeCountHandler{reg: reg, logger: logger}
}

// ProcessTask implements asynq.Handler.
func (h *InvokeCountHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p InvokeCountPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal invoke count payload: %v: %w", err, asynq.SkipRetry)
	}

	ok, err := h.reg.InvokeCount(ctx, p.InterfaceID, p.ConsumerID)
	if err != nil {
		return fmt.Errorf("invoke count: %w", err)
	}
	if !ok {
		h.logger.Warn("invoke count matched no quota row",
			zap.Int64("interface_id", p.InterfaceID),
			zap.Int64("consumer_id", p.ConsumerID))
	}
	return nil
}
