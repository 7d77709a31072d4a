package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/services"
	"fieldsync/internal/store"
)

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRemote_OK(t *testing.T) {
	result := CheckRemote(context.Background(), healthFunc(func(context.Context) error { return nil }))
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckRemote_Failure(t *testing.T) {
	result := CheckRemote(context.Background(), healthFunc(func(context.Context) error {
		return services.Wrap(services.ErrTransient, "remote", "health", "502", nil)
	}))
	if result.Passed {
		t.Fatal("expected failure for unhealthy remote")
	}
}

func TestCheckRemote_Timeout(t *testing.T) {
	result := CheckRemote(context.Background(), healthFunc(func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok || time.Until(deadline) > 5*time.Second {
			t.Errorf("expected bounded deadline")
		}
		return context.DeadlineExceeded
	}))
	if result.Passed || result.Detail != "health check timed out (remote unresponsive)" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCheckRemote_NotConfigured(t *testing.T) {
	if result := CheckRemote(context.Background(), nil); result.Passed {
		t.Fatal("expected failure for missing remote")
	}
}

func TestCheckStore(t *testing.T) {
	degraded := CheckStore(store.Degraded(errors.New("disk full")))
	if degraded.Passed {
		t.Fatal("expected degraded store to fail")
	}
	if degraded.Detail != "degraded (disk full)" {
		t.Fatalf("unexpected detail: %q", degraded.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil, nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_DirectoriesOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.BroadcastDir = t.TempDir()

	results := RunAll(context.Background(), &cfg, nil)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesRemote(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.BroadcastDir = t.TempDir()

	results := RunAll(context.Background(), &cfg, healthFunc(func(context.Context) error { return nil }))
	if len(results) != 4 || results[3].Name != "Remote API" {
		t.Fatalf("expected remote check last, got %+v", results)
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Log directory" {
		t.Fatalf("expected only log directory to fail, got %+v", failed)
	}
}
