package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/restwell/sleepagent/pkg/logger"
)

// Sweeper periodically expires aged-out short-term sessions for every known
// user, driven by a cron expression.
type Sweeper struct {
	store Store
	stm   *ShortTermMemory
	expr  string
	gron  *gronx.Gronx

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSweeper validates the cron expression up front so a bad schedule fails
// at startup, not at 3am.
func NewSweeper(store Store, stm *ShortTermMemory, cronExpr string) (*Sweeper, error) {
	g := gronx.New()
	if !g.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid sweep schedule %q", cronExpr)
	}
	return &Sweeper{
		store: store,
		stm:   stm,
		expr:  cronExpr,
		gron:  g,
	}, nil
}

// Start launches the scheduler loop. It ticks once per minute and runs a
// sweep whenever the cron expression is due.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx)
	logger.InfoCF("memory", "Retention sweeper started", map[string]interface{}{
		"schedule": s.expr,
	})
}

// Stop halts the scheduler loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := s.gron.IsDue(s.expr)
			if err != nil || !due {
				continue
			}
			if err := s.SweepAll(ctx); err != nil {
				logger.WarnCF("memory", "Retention sweep failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

// SweepAll runs the retention sweep for every user present in the store.
func (s *Sweeper) SweepAll(ctx context.Context) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	swept := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.stm.Sweep(ctx, userID); err != nil {
			logger.WarnCF("memory", "Sweep failed for user", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
			continue
		}
		swept++
	}

	logger.InfoCF("memory", "Retention sweep complete", map[string]interface{}{
		"users": swept,
	})
	return nil
}
