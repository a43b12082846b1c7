package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sovrhq/clearing/internal/adapter/http/dto"
)

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("failed to read stdout: %v", err)
	}
	return buf.String()
}

func withTestServer(t *testing.T, handler http.HandlerFunc) (exitCode *int) {
	t.Helper()

	server := httptest.NewServer(handler)

	origURL, origExit := baseURL, exitFn
	baseURL = server.URL

	code := -1
	exitFn = func(c int) { code = c }

	t.Cleanup(func() {
		server.Close()
		baseURL, exitFn = origURL, origExit
	})

	return &code
}

func TestPrintBody(t *testing.T) {
	out := captureOutput(t, func() {
		printBody([]byte(`{"a":1}`))
	})

	expected := "{\n  \"a\": 1\n}\n"
	if out != expected {
		t.Fatalf("unexpected json output:\n%s", out)
	}
}

func TestPrintBodyPassesThroughNonJSON(t *testing.T) {
	out := captureOutput(t, func() {
		printBody([]byte("plain text"))
	})

	if strings.TrimSpace(out) != "plain text" {
		t.Fatalf("expected passthrough, got %q", out)
	}
}

func TestFillIdentifiers(t *testing.T) {
	req := dto.SubmitClearingRequest{}
	fillIdentifiers(&req)

	if req.IntentID == "" || req.EntryID == "" {
		t.Fatalf("expected generated identifiers, got %+v", req)
	}
	if req.Date.IsZero() {
		t.Fatal("expected date to be filled")
	}

	fixed := dto.SubmitClearingRequest{IntentID: "intent-1", EntryID: "entry-1"}
	fillIdentifiers(&fixed)
	if fixed.IntentID != "intent-1" || fixed.EntryID != "entry-1" {
		t.Fatalf("expected supplied identifiers preserved, got %+v", fixed)
	}
}

func TestConsistencyCmdPasses(t *testing.T) {
	exitCode := withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/consistency" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"checked_intents":2,"mirrored":2,"outbox_backlog":0,"discrepancies":[],"mirror_consistent":true,"checked_at":"2025-06-01T00:00:00Z"}`))
	})

	cmd := consistencyCmd()
	cmd.SetArgs([]string{})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if !strings.Contains(out, "Mirror consistency PASSED") {
		t.Fatalf("expected PASSED, got %s", out)
	}
	if *exitCode != -1 {
		t.Fatalf("expected no exit, got code %d", *exitCode)
	}
}

func TestConsistencyCmdFailsOnDiscrepancy(t *testing.T) {
	exitCode := withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"checked_intents":2,"mirrored":1,"outbox_backlog":0,"discrepancies":[{"intent_id":"intent-2","mirrored":false}],"mirror_consistent":false,"checked_at":"2025-06-01T00:00:00Z"}`))
	})

	cmd := consistencyCmd()
	cmd.SetArgs([]string{})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if !strings.Contains(out, "Mirror consistency FAILED") {
		t.Fatalf("expected FAILED, got %s", out)
	}
	if *exitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", *exitCode)
	}
}

func TestSubmitCmdPrintsRejection(t *testing.T) {
	exitCode := withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/clearings" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"intent_id":"intent-1","status":"REJECTED","issues":[{"code":"unbalanced","message":"debits 100 != credits 90"}]}`))
	})

	entry := filepath.Join(t.TempDir(), "entry.json")
	payload := `{"intent_id":"intent-1","entry_id":"entry-1","source":"ACH","lines":[]}`
	if err := os.WriteFile(entry, []byte(payload), 0o600); err != nil {
		t.Fatalf("failed to write entry file: %v", err)
	}

	cmd := submitCmd()
	cmd.SetArgs([]string{entry})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if !strings.Contains(out, "REJECTED") || !strings.Contains(out, "unbalanced") {
		t.Fatalf("expected itemized rejection, got %s", out)
	}
	if *exitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", *exitCode)
	}
}

func TestAccountGetCmd(t *testing.T) {
	exitCode := withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/accounts/acct:ops" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"acct:ops","name":"operating","type":"asset","active":true}`))
	})

	cmd := accountCmd()
	cmd.SetArgs([]string{"get", "acct:ops"})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Fatalf("command failed: %v", err)
		}
	})

	if !strings.Contains(out, `"id": "acct:ops"`) {
		t.Fatalf("expected account body, got %s", out)
	}
	if *exitCode != -1 {
		t.Fatalf("expected no exit, got code %d", *exitCode)
	}
}
