package cli

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eaasxt/farmhand/internal/auth"
	"github.com/eaasxt/farmhand/internal/config"
	httpapi "github.com/eaasxt/farmhand/internal/http"
	"github.com/eaasxt/farmhand/internal/state"
	"github.com/eaasxt/farmhand/internal/storage/sqlite"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.NewInMemory()
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	svc := httpapi.NewService(store, time.Hour)
	srv := httptest.NewServer(httpapi.NewRouter(svc, nil, auth.Middleware(nil)))
	t.Cleanup(srv.Close)
	return srv
}

func runCommand(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvDataDir, dataDir)
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRegisterReserveReleaseFlow(t *testing.T) {
	srv := startTestServer(t)
	dataDir := t.TempDir()
	base := []string{"--server", srv.URL, "--project", "cli-proj", "--agent", "swift-heron"}

	out, err := runCommand(t, dataDir, append([]string{"register"}, base...)...)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.Contains(out, "registered as swift-heron") {
		t.Fatalf("unexpected register output: %q", out)
	}

	out, err = runCommand(t, dataDir, append([]string{"reserve", "internal/**"}, base...)...)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !strings.Contains(out, "reserved internal/**") {
		t.Fatalf("unexpected reserve output: %q", out)
	}

	// The cached state tracks what was reserved.
	cached, err := state.NewCache(dataDir).Load("cli-proj--swift-heron")
	if err != nil {
		t.Fatalf("load cache: %v", err)
	}
	if !cached.Registered || len(cached.Reservations) != 1 || cached.Reservations[0] != "internal/**" {
		t.Fatalf("unexpected cached state: %+v", cached)
	}

	out, err = runCommand(t, dataDir, append([]string{"status"}, base...)...)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "internal/**") || !strings.Contains(out, "exclusive") {
		t.Fatalf("unexpected status output: %q", out)
	}

	out, err = runCommand(t, dataDir, append([]string{"release"}, base...)...)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !strings.Contains(out, "released 1") {
		t.Fatalf("unexpected release output: %q", out)
	}

	cached, err = state.NewCache(dataDir).Load("cli-proj--swift-heron")
	if err != nil {
		t.Fatalf("reload cache: %v", err)
	}
	if len(cached.Reservations) != 0 {
		t.Fatalf("expected empty cached reservations, got %+v", cached.Reservations)
	}
}

func TestReserveConflictReportsHolder(t *testing.T) {
	srv := startTestServer(t)
	dataDir := t.TempDir()

	for _, agent := range []string{"alpha", "beta"} {
		if _, err := runCommand(t, dataDir, "register", "--server", srv.URL, "--project", "cli-proj", "--agent", agent); err != nil {
			t.Fatalf("register %s: %v", agent, err)
		}
	}
	if _, err := runCommand(t, dataDir, "reserve", "pkg/*.go", "--server", srv.URL, "--project", "cli-proj", "--agent", "alpha"); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	out, err := runCommand(t, dataDir, "reserve", "pkg/util.go", "--server", srv.URL, "--project", "cli-proj", "--agent", "beta")
	if err == nil {
		t.Fatalf("expected conflict error")
	}
	if !strings.Contains(out, "alpha") {
		t.Fatalf("expected holder named in output, got %q", out)
	}
}

func TestInitKeysCommand(t *testing.T) {
	dataDir := t.TempDir()
	keysPath := filepath.Join(dataDir, "keys.yaml")

	out, err := runCommand(t, dataDir, "init-keys", "--keys-file", keysPath, "--project", "cli-proj")
	if err != nil {
		t.Fatalf("init-keys: %v", err)
	}
	if !strings.Contains(out, keysPath) {
		t.Fatalf("expected keys path in output, got %q", out)
	}

	ring, err := auth.LoadKeyring(keysPath)
	if err != nil {
		t.Fatalf("load keyring: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	key := lines[len(lines)-1]
	if project, ok := ring.ProjectForKey(key); !ok || project != "cli-proj" {
		t.Fatalf("expected generated key to map to cli-proj, got %q ok=%v", project, ok)
	}
}

func TestHostport(t *testing.T) {
	if got := hostport(":7453"); got != "127.0.0.1:7453" {
		t.Fatalf("hostport(:7453) = %q", got)
	}
	if got := hostport("0.0.0.0:9000"); got != "0.0.0.0:9000" {
		t.Fatalf("hostport(0.0.0.0:9000) = %q", got)
	}
}
