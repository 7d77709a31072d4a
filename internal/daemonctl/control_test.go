package daemonctl

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"fieldsync/internal/testsupport"
)

func TestPIDPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if got := PIDPath("/var/lib/fieldsync/fieldsync.lock", cfg); got != "/var/lib/fieldsync/fieldsync.pid" {
		t.Fatalf("unexpected pid path from lock: %q", got)
	}
	if got := PIDPath("", cfg); got != filepath.Join(cfg.Paths.DataDir, PIDFileName) {
		t.Fatalf("unexpected pid path from config: %q", got)
	}
	if got := PIDPath("", nil); got != "" {
		t.Fatalf("expected empty pid path, got %q", got)
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, PIDFileName)

	pid, err := ReadPID(path, 99)
	if err != nil || pid != 99 {
		t.Fatalf("expected fallback for missing file, got %d, %v", pid, err)
	}

	if err := os.WriteFile(path, []byte("1234\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	pid, err = ReadPID(path, 99)
	if err != nil || pid != 1234 {
		t.Fatalf("expected recorded pid, got %d, %v", pid, err)
	}

	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ReadPID(path, 99); err == nil {
		t.Fatal("expected malformed pid file to fail")
	}
}

func TestSignalProcessRefusesSelf(t *testing.T) {
	if err := SignalProcess(os.Getpid(), syscall.SIGTERM); err == nil {
		t.Fatal("expected refusal to signal the current process")
	}
	if err := SignalProcess(0, syscall.SIGTERM); err == nil {
		t.Fatal("expected invalid pid error")
	}
}

func TestDaemonNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	socket := cfg.Paths.SocketPath

	alive, pid, err := ProcessInfo(socket)
	if err != nil || alive || pid != 0 {
		t.Fatalf("expected no daemon, got alive=%v pid=%d err=%v", alive, pid, err)
	}
	if err := WaitForShutdown(socket, time.Second); err != nil {
		t.Fatalf("expected immediate shutdown confirmation, got %v", err)
	}
	if _, err := StopAndTerminate(socket, cfg, time.Second); err != ErrDaemonNotRunning {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}
