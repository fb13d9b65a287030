package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nimburion/offlinequeue/pkg/health"
)

const (
	defaultEngineHealthCheckName     = "offline-queue"
	defaultDeadLetterHealthCheckName = "offline-queue-dead-letter"
)

// NewHealthChecker reports unhealthy until the engine is initialized and after it is closed.
func NewHealthChecker(name string, engine *Engine, timeout time.Duration) health.Checker {
	return health.NewAdapterChecker(checkName(name, defaultEngineHealthCheckName), engine, timeout)
}

// NewDeadLetterChecker reports degraded while dead-lettered mutations wait for an operator.
func NewDeadLetterChecker(name string, engine *Engine) health.Checker {
	probe := func(context.Context) (health.Status, string, error) {
		st := engine.Status()
		if st.DeadLetterCount > 0 {
			return health.StatusDegraded, fmt.Sprintf("%d dead-lettered, %d pending", st.DeadLetterCount, st.Pending), nil
		}
		return health.StatusHealthy, fmt.Sprintf("%d pending", st.Pending), nil
	}
	return health.NewCustomChecker(checkName(name, defaultDeadLetterHealthCheckName), probe)
}

func checkName(name, fallback string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return fallback
}
