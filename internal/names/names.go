// Package names generates memorable agent names for registration. Names are
// adjective-noun pairs so operators can tell agents apart at a glance in
// reservation listings and deny messages.
package names

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

var (
	mu  sync.Mutex
	rng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

var adjectives = []string{
	"amber", "bold", "brisk", "calm", "candid", "civil", "clever",
	"copper", "cosmic", "daring", "deft", "eager", "earnest", "fleet",
	"frank", "gentle", "golden", "hardy", "humble", "iron", "keen",
	"lively", "lucid", "mellow", "modest", "nimble", "patient", "placid",
	"proud", "quiet", "rapid", "rustic", "sable", "sage", "silver",
	"sly", "solid", "stable", "steady", "stern", "swift", "tidy",
	"upbeat", "vivid", "wry",
}

var nouns = []string{
	"anvil", "badger", "beacon", "bellows", "chisel", "compass", "crane",
	"falcon", "ferret", "forge", "gable", "gannet", "harrow", "heron",
	"kestrel", "lantern", "lathe", "magpie", "mallet", "marten", "mill",
	"otter", "owl", "pike", "plough", "quarry", "quill", "raven",
	"saw", "scythe", "shear", "sickle", "sparrow", "spindle", "stoat",
	"tern", "thresher", "trowel", "vole", "wren",
}

// Pick returns a random adjective-noun name, e.g. "swift-heron".
func Pick() string {
	mu.Lock()
	defer mu.Unlock()
	return adjectives[rng.Intn(len(adjectives))] + "-" + nouns[rng.Intn(len(nouns))]
}

// PickAvoiding returns a name not present in taken, appending a numeric
// suffix when the combination space is exhausted.
func PickAvoiding(taken map[string]bool) string {
	for attempt := 0; attempt < 64; attempt++ {
		name := Pick()
		if !taken[name] {
			return name
		}
	}
	base := Pick()
	for n := 2; ; n++ {
		name := fmt.Sprintf("%s-%d", base, n)
		if !taken[name] {
			return name
		}
	}
}

// Valid reports whether a caller-supplied name is usable: lowercase letters,
// digits, and hyphens, non-empty, no leading or trailing hyphen.
func Valid(name string) bool {
	if name == "" || strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
