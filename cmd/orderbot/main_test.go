package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/m3rciful/orderbot/core/buildinfo"
)

func TestCommandTree(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{{"serve"}, {"version"}, {"webhook", "set"}, {"webhook", "delete"}} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == root {
			t.Fatalf("command %v not found: %v", path, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Fatal("missing --config flag")
	}
	del, _, _ := root.Find([]string{"webhook", "delete"})
	if del.Flags().Lookup("drop-pending") == nil {
		t.Fatal("missing --drop-pending flag")
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != buildinfo.String() {
		t.Fatalf("unexpected output %q", out.String())
	}
}
