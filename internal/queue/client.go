package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/hibiken/asynq"
)

var ErrTaskFailed = errors.New("stage task failed")

type ClientConfig struct {
	Queue        string
	TaskTimeout  time.Duration
	Retention    time.Duration
	PollInterval time.Duration
}

// Client invokes stages through the queue worker and waits for the task
// result.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	cfg       ClientConfig
}

func NewClient(redisOpt asynq.RedisClientOpt, cfg ClientConfig) *Client {
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 10 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	return &Client{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		cfg:       cfg,
	}
}

func (c *Client) Invoke(ctx context.Context, functionID string, req domain.Request) (domain.Response, error) {
	task, err := NewInvokeStageTask(InvokeStagePayload{
		FunctionID:  functionID,
		Request:     req,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Response{}, err
	}

	info, err := c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.cfg.Queue),
		asynq.MaxRetry(0),
		asynq.Timeout(c.taskTimeout(ctx)),
		asynq.Retention(c.cfg.Retention),
	)
	if err != nil {
		return domain.Response{}, fmt.Errorf("enqueue %s: %w", functionID, err)
	}

	return c.await(ctx, info.Queue, info.ID)
}

func (c *Client) await(ctx context.Context, queueName, taskID string) (domain.Response, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return domain.Response{}, ctx.Err()
		case <-ticker.C:
		}

		info, err := c.inspector.GetTaskInfo(queueName, taskID)
		if err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) {
				continue
			}
			return domain.Response{}, fmt.Errorf("inspect task %s: %w", taskID, err)
		}

		switch info.State {
		case asynq.TaskStateCompleted:
			var resp domain.Response
			if err := json.Unmarshal(info.Result, &resp); err != nil {
				return domain.Response{}, fmt.Errorf("decode task result %s: %w", taskID, err)
			}
			return resp, nil
		case asynq.TaskStateArchived:
			return domain.Response{}, fmt.Errorf("%w: %s", ErrTaskFailed, info.LastErr)
		}
	}
}

// taskTimeout bounds the worker-side run by the caller's deadline when one
// is set.
func (c *Client) taskTimeout(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return c.cfg.TaskTimeout
	}
	if remaining := time.Until(deadline); remaining > 0 && remaining < c.cfg.TaskTimeout {
		return remaining
	}
	return c.cfg.TaskTimeout
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}
