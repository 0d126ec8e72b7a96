package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/eaasxt/farmhand/internal/core"
	"github.com/eaasxt/farmhand/internal/storage"
)

func NewSQLiteTest(t *testing.T) *Store {
	t.Helper()
	st, err := NewInMemory()
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func registerTestAgent(t *testing.T, st *Store, projectKey, name string) core.Agent {
	t.Helper()
	agent, err := st.RegisterAgent(context.Background(), storage.RegisterRequest{
		ProjectKey: projectKey,
		Name:       name,
		Program:    "test",
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return agent
}

func reserveTest(t *testing.T, st *Store, projectKey, agentName string, patterns []string, exclusive bool) []core.Reservation {
	t.Helper()
	res, err := st.Reserve(context.Background(), storage.ReserveRequest{
		ProjectKey: projectKey,
		AgentName:  agentName,
		Patterns:   patterns,
		Exclusive:  exclusive,
		TTL:        time.Hour,
	})
	if err != nil {
		t.Fatalf("reserve %v for %s: %v", patterns, agentName, err)
	}
	return res
}
