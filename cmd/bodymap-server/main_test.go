package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCatalogTypes(t *testing.T) {
	out, err := run(t, "catalog", "types", "--category", "critical")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "chest_tube") || !strings.Contains(out, "code_dnr") {
		t.Errorf("expected critical types, got:\n%s", out)
	}
	if strings.Contains(out, "foley_catheter") {
		t.Error("foley catheter is not critical")
	}

	out, err = run(t, "catalog", "types", "--badges=true")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "code_dnr") || strings.Contains(out, "chest_tube") {
		t.Errorf("expected only badges, got:\n%s", out)
	}

	if _, err := run(t, "catalog", "types", "--category", "cosmetic"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestCatalogRegions(t *testing.T) {
	out, err := run(t, "catalog", "regions", "--view", "back")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "lower_back") || strings.Contains(out, "chest_left") {
		t.Errorf("unexpected back regions:\n%s", out)
	}

	if _, err := run(t, "catalog", "regions", "--view", "side"); err == nil {
		t.Error("expected error for invalid view")
	}
}

func TestCatalogResolve(t *testing.T) {
	out, err := run(t, "catalog", "resolve", "foley catheter,", "chest tube left side, ambulating")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "foley_catheter") {
		t.Errorf("expected foley catheter, got:\n%s", out)
	}
	if !strings.Contains(out, "chest_left") {
		t.Errorf("expected left-side chest tube placement, got:\n%s", out)
	}
	if !strings.Contains(out, "unmatched: ambulating") {
		t.Errorf("expected unmatched phrase, got:\n%s", out)
	}

	if _, err := run(t, "catalog", "resolve"); err == nil {
		t.Error("expected error without text")
	}
}

func TestCatalogClosest(t *testing.T) {
	out, err := run(t, "catalog", "closest", "--x", "50", "--y", "45", "--view", "back")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "lower_back") {
		t.Errorf("expected lower_back, got %q", out)
	}

	if _, err := run(t, "catalog", "closest", "--x", "150"); err == nil {
		t.Error("expected error for out-of-range coordinate")
	}
}

func TestTenantCreate_RequiresName(t *testing.T) {
	if _, err := run(t, "tenant", "create"); err == nil {
		t.Error("expected error without --name")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	prodLogger := newLogger("production", &buf)
	prodLogger.Info().Msg("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected JSON log line, got %q", buf.String())
	}

	buf.Reset()
	devLogger := newLogger("development", &buf)
	devLogger.Info().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected console log line, got %q", buf.String())
	}
}
