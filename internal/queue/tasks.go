package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeInvokeStage = "stage:invoke"

type InvokeStagePayload struct {
	FunctionID  string         `json:"function_id"`
	Request     domain.Request `json:"request"`
	RequestedAt time.Time      `json:"requested_at"`
}

func NewInvokeStageTask(payload InvokeStagePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal invoke payload: %w", err)
	}
	return asynq.NewTask(TypeInvokeStage, body), nil
}

func ParseInvokeStagePayload(task *asynq.Task) (InvokeStagePayload, error) {
	var payload InvokeStagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return InvokeStagePayload{}, fmt.Errorf("unmarshal invoke payload: %w", err)
	}
	return payload, nil
}
