package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingIsZero(t *testing.T) {
	c := NewCache(t.TempDir())
	st, err := c.Load("proj--agent")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.Registered || st.AgentName != "" || len(st.Reservations) != 0 {
		t.Fatalf("expected zero state, got %+v", st)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := NewCache(t.TempDir())
	in := LocalAgentState{
		Registered:   true,
		AgentName:    "swift-heron",
		Reservations: []string{"src/**", "docs/api.md"},
	}
	if err := c.Save("proj--agent", in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := c.Load("proj--agent")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !out.Registered || out.AgentName != "swift-heron" || len(out.Reservations) != 2 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestLoadCorruptErrors(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.Load("bad"); err == nil {
		t.Fatal("expected error for corrupt cache")
	}
}

func TestResetOnlyTargetKey(t *testing.T) {
	c := NewCache(t.TempDir())
	c.Save("a", LocalAgentState{Registered: true})
	c.Save("b", LocalAgentState{Registered: true})

	if err := c.Reset("a"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	stA, _ := c.Load("a")
	if stA.Registered {
		t.Fatal("expected a's cache cleared")
	}
	stB, _ := c.Load("b")
	if !stB.Registered {
		t.Fatal("b's cache must be untouched")
	}
}

func TestResetMissingIsNoOp(t *testing.T) {
	c := NewCache(t.TempDir())
	if err := c.Reset("never-existed"); err != nil {
		t.Fatalf("reset of missing file must succeed, got %v", err)
	}
}
