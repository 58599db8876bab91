package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()

	expected := []string{
		"status", "scan", "search", "identify", "clusters", "show", "accept",
		"reject", "canonicalize", "unlock", "library", "config",
	}
	registered := make(map[string]bool)
	for _, cmd := range root.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range expected {
		if !registered[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestParseClusterID(t *testing.T) {
	if id, err := parseClusterID(" 42 "); err != nil || id != 42 {
		t.Fatalf("expected 42, got %d err=%v", id, err)
	}
	for _, bad := range []string{"", "abc", "0", "-5"} {
		if _, err := parseClusterID(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseCandidateIDs(t *testing.T) {
	ids, err := parseCandidateIDs([]string{"1", " 2 "})
	if err != nil || len(ids) != 2 || ids[1] != 2 {
		t.Fatalf("expected [1 2], got %v err=%v", ids, err)
	}
	if _, err := parseCandidateIDs([]string{"1", "zero"}); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestRenderTable(t *testing.T) {
	output := renderTable(
		[]string{"ID", "Title"},
		[][]string{{"1", "Work A"}, {"2"}},
		0,
	)
	for _, want := range []string{"ID", "Title", "Work A"} {
		if !strings.Contains(output, want) {
			t.Fatalf("table output missing %q:\n%s", want, output)
		}
	}
	if renderTable(nil, nil) != "" {
		t.Fatal("expected empty output for no headers")
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"config", "init", "--config", path})

	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out.String(), path) {
		t.Fatalf("expected output to mention %s, got %q", path, out.String())
	}

	root = newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"config", "init", "--config", path})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error when file exists without --force")
	}
}
