package scheduler

import (
	"strings"
	"time"

	"github.com/nimburion/offlinequeue/pkg/health"
)

// NewLockProviderHealthChecker is unhealthy while the lease backend is
// unreachable. An empty name registers the check as "scheduler-lock".
func NewLockProviderHealthChecker(name string, provider LockProvider, timeout time.Duration) health.Checker {
	if name = strings.TrimSpace(name); name == "" {
		name = "scheduler-lock"
	}
	return health.NewAdapterChecker(name, provider, timeout)
}
