// Package identity resolves which agent a hook or CLI invocation is acting
// as. The resolved identity keys the local state cache, so two strategies
// with the same inputs must always produce the same key.
package identity

import (
	"fmt"
	"os"
	"strings"
)

// EnvAgent names the agent for NamedIdentity resolution.
const EnvAgent = "FARMHAND_AGENT"

// Identity is a resolved actor: the project it belongs to, the agent name
// it acts as (empty until registration under SharedIdentity), and the cache
// key its local state lives under.
type Identity struct {
	ProjectKey string
	AgentName  string
	CacheKey   string
}

// Resolver produces an Identity for a project, or an error when the
// strategy's required inputs are missing. Resolvers never guess.
type Resolver interface {
	Resolve(projectKey string) (Identity, error)
}

// NamedIdentity resolves to an explicitly named agent. Name comes from the
// flag value when set, else from FARMHAND_AGENT. An empty name is an error.
type NamedIdentity struct {
	Name string
}

func (n NamedIdentity) Resolve(projectKey string) (Identity, error) {
	name := n.Name
	if name == "" {
		name = os.Getenv(EnvAgent)
	}
	if name == "" {
		return Identity{}, fmt.Errorf("agent name required: set %s or pass --agent", EnvAgent)
	}
	if projectKey == "" {
		return Identity{}, fmt.Errorf("project key required")
	}
	return Identity{
		ProjectKey: projectKey,
		AgentName:  name,
		CacheKey:   cacheKey(projectKey, name),
	}, nil
}

// SharedIdentity resolves to one identity per project, for single-agent
// setups where naming each session is not worth the ceremony. The agent
// name is whatever registration assigned, recorded in the state cache.
type SharedIdentity struct{}

func (SharedIdentity) Resolve(projectKey string) (Identity, error) {
	if projectKey == "" {
		return Identity{}, fmt.Errorf("project key required")
	}
	return Identity{
		ProjectKey: projectKey,
		CacheKey:   cacheKey(projectKey, "shared"),
	}, nil
}

// cacheKey flattens project and name into a filesystem-safe token.
func cacheKey(parts ...string) string {
	safe := make([]string, 0, len(parts))
	for _, p := range parts {
		safe = append(safe, sanitize(p))
	}
	return strings.Join(safe, "--")
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
