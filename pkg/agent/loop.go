package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/restwell/sleepagent/pkg/bus"
	"github.com/restwell/sleepagent/pkg/logger"
	"github.com/restwell/sleepagent/pkg/task"
)

// Service runs a pool of workers that consume task requests from the bus,
// push each through the pipeline, and resolve the result back to the
// submitter.
type Service struct {
	bus      *bus.TaskBus
	pipeline *Pipeline
	workers  int
	running  atomic.Bool
	wg       sync.WaitGroup
}

func NewService(taskBus *bus.TaskBus, pipeline *Pipeline, workers int) *Service {
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		bus:      taskBus,
		pipeline: pipeline,
		workers:  workers,
	}
}

// Run starts the worker pool and blocks until the context ends or Stop is
// called.
func (s *Service) Run(ctx context.Context) error {
	s.running.Store(true)

	logger.InfoCF("agent", "Worker pool started", map[string]interface{}{
		"workers": s.workers,
	})

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.wg.Wait()
	return nil
}

func (s *Service) worker(ctx context.Context, id int) {
	defer s.wg.Done()

	for s.running.Load() {
		select {
		case <-ctx.Done():
			return
		default:
			// Consume only fails when the context ends or the bus is
			// closed; either way there is nothing left to poll for.
			req, ok := s.bus.Consume(ctx)
			if !ok {
				return
			}

			logger.InfoCF("agent", fmt.Sprintf("Worker %d processing task %s", id, req.TaskID),
				map[string]interface{}{
					"worker":  id,
					"task_id": req.TaskID,
					"user_id": req.UserID,
				})

			result := s.pipeline.Process(ctx, req)
			s.bus.Resolve(result)

			if result.Status == task.StatusError {
				logger.WarnCF("agent", "Task failed", map[string]interface{}{
					"task_id": result.TaskID,
					"error":   result.Error,
				})
			}
		}
	}
}

func (s *Service) Stop() {
	s.running.Store(false)
}
