package main

import (
	"bytes"
	"strings"
	"testing"

	"fieldsync/internal/api"
	"fieldsync/internal/ipc"
	"fieldsync/internal/preflight"
)

func TestRenderStatusLineColor(t *testing.T) {
	plain := renderStatusLine("Remote", statusOK, "reachable", false)
	if strings.Contains(plain, "\x1b[") {
		t.Fatalf("expected no ANSI codes, got %q", plain)
	}
	if !strings.Contains(plain, "[OK] reachable") {
		t.Fatalf("unexpected line %q", plain)
	}
	colored := renderStatusLine("Remote", statusError, "", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected red line, got %q", colored)
	}
}

func TestDisplayLabel(t *testing.T) {
	cases := map[string]string{
		"forms":          "Forms",
		"store_degraded": "Store Degraded",
		"sync-failure":   "Sync Failure",
		"":               "",
	}
	for input, want := range cases {
		if got := displayLabel(input); got != want {
			t.Errorf("displayLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestBuildQueueStatusRowsOrdersStores(t *testing.T) {
	stats := map[string]map[string]int{
		"signatures": {"queued": 1},
		"forms":      {"queued": 2, "failed": 1},
		"images":     {},
	}
	rows := buildQueueStatusRows(stats)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Forms" || rows[1][0] != "Images" || rows[2][0] != "Signatures" {
		t.Fatalf("unexpected order: %v", rows)
	}
	if buildQueueStatusRows(map[string]map[string]int{"forms": {}}) != nil {
		t.Fatal("expected empty queues to produce no rows")
	}
}

func TestRenderDaemonStatus(t *testing.T) {
	status := &ipc.StatusResponse{
		Running:        true,
		PID:            42,
		StoreAvailable: false,
		StoreReason:    "disk full",
		Connectivity:   api.ConnectivityStatus{State: "offline", LastError: "dial tcp: refused"},
		Preflight:      []preflight.Result{{Name: "Data directory", Passed: true, Detail: "/tmp/data"}},
		Workflow: api.WorkflowStatus{
			QueueStats: map[string]map[string]int{"forms": {"queued": 3}},
		},
	}
	var buf bytes.Buffer
	renderDaemonStatus(&buf, status, false)
	out := buf.String()
	for _, want := range []string{"running (pid 42)", "degraded: disk full", "offline (dial tcp: refused)", "Data directory", "Forms"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q:\n%s", want, out)
		}
	}
}

func TestBuildQueueListRowsTruncatesErrors(t *testing.T) {
	rows := buildQueueListRows([]api.QueueItem{{
		ID:        3,
		Store:     "images",
		Status:    "failed",
		LastError: strings.Repeat("x", 80),
	}})
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if got := []rune(rows[0][5]); len(got) != 60 {
		t.Fatalf("expected truncated error of 60 runes, got %d", len(got))
	}
	if rows[0][4] != "-" {
		t.Fatalf("expected no next attempt for failed items, got %q", rows[0][4])
	}
}
