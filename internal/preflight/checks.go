package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"fieldsync/internal/services"
	"fieldsync/internal/store"
)

// HealthChecker reaches the remote API health endpoint.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// CheckRemote verifies that the remote API answers its health endpoint.
// It uses a 5-second timeout and a single attempt.
func CheckRemote(ctx context.Context, checker HealthChecker) Result {
	const name = "Remote API"
	if checker == nil {
		return Result{Name: name, Detail: "not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := checker.Health(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeRemoteError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckStore reports whether the local store is durable.
func CheckStore(st *store.Store) Result {
	const name = "Local store"
	if st.Available() {
		return Result{Name: name, Passed: true, Detail: st.Path()}
	}
	reason := "unavailable"
	if err := st.Reason(); err != nil {
		reason = err.Error()
	}
	return Result{Name: name, Detail: fmt.Sprintf("degraded (%s)", reason)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeRemoteError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, services.ErrTimeout) {
		return "health check timed out (remote unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (remote unreachable)"
	}
	return err.Error()
}
