package event

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
)

type Callable interface {
	Invoke(ctx context.Context) error
}

// CallableFunc adapts a plain function to Callable.
type CallableFunc func(ctx context.Context) error

func (f CallableFunc) Invoke(ctx context.Context) error {
	return f(ctx)
}

type Cleaner struct {
	cleaners       []Callable
	mu             sync.Mutex
	cleanOnce      sync.Once
	cleaning       bool
	timeout        time.Duration
	loggerShutdown Callable
}

// NewCleaner returns a cleaner that gives every callback timeout to finish.
// loggerShutdown runs after all other callbacks and may be nil.
func NewCleaner(loggerShutdown Callable, timeout time.Duration) *Cleaner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Cleaner{timeout: timeout, loggerShutdown: loggerShutdown}
}

func (c *Cleaner) Add(callable Callable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleaning {
		logger.Debug("Cleaner is already shutting down, ignoring new cleaner")
		return
	}
	c.cleaners = append(c.cleaners, callable)
}

// Wait blocks until ctx is cancelled or the process receives SIGINT/SIGTERM, then runs Clean.
func (c *Cleaner) Wait(ctx context.Context) []error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()
	logger.Info("Received interrupt signal, shutting down")
	return c.Clean()
}

// Clean invokes the registered callbacks in registration order. Only the first call does any work.
func (c *Cleaner) Clean() []error {
	var errs []error
	c.cleanOnce.Do(func() {
		c.mu.Lock()
		c.cleaning = true
		cleanersCopy := make([]Callable, len(c.cleaners))
		copy(cleanersCopy, c.cleaners)
		c.mu.Unlock()

		logger.DebugF("Starting cleanup of %d registered functions", len(cleanersCopy))

		for i, callable := range cleanersCopy {
			logger.DebugF("Invoking cleaner #%d (%T)", i+1, callable)
			timeoutCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
			if err := callable.Invoke(timeoutCtx); err != nil {
				logger.ErrorF("Cleaner #%d (%T) failed: %v", i+1, callable, err)
				errs = append(errs, err)
			}
			cancel()
		}

		if len(errs) > 0 {
			logger.ErrorF("%d errors occurred during cleanup", len(errs))
		} else {
			logger.Debug("All cleaners executed successfully")
		}
		logger.Info("Cleanup finished, server offline")

		if c.loggerShutdown == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.loggerShutdown.Invoke(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "LOGGER SHUTDOWN ERROR: %v\n", err)
		}
	})
	return errs
}
