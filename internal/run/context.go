// Package run holds the identity of the current program run.
package run

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alamak-sim/copsimcar/internal/model"
)

// Context holds the current run record.
type Context struct {
	mu  sync.RWMutex
	run *model.Run
}

// NewContext creates a Context for a run of program against host:port that
// starts now. The run gets a fresh UUID.
func NewContext(program, host string, port int) *Context {
	return &Context{
		run: &model.Run{
			UUID:      uuid.NewString(),
			Program:   program,
			Host:      host,
			Port:      port,
			StartTime: time.Now().UTC(),
		},
	}
}

// Run returns the current run. Callers must not modify it; use Update.
func (c *Context) Run() *model.Run {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run
}

// ID returns the journal id of the run, zero until a backend stored it.
func (c *Context) ID() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run.ID
}

// UUID returns the run's UUID.
func (c *Context) UUID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run.UUID
}

// Update applies fn to the run under the write lock.
func (c *Context) Update(fn func(r *model.Run)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.run)
}

// LogAttrs tags log records with the run id. It satisfies
// logging.ContextProvider.
func (c *Context) LogAttrs() []slog.Attr {
	return []slog.Attr{slog.String("run_id", c.UUID())}
}
