// Package cli wires the farmhand commands: the server, the agent-facing
// reservation commands, the operator reaper, and the hidden hook handlers.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eaasxt/farmhand/client"
	"github.com/eaasxt/farmhand/internal/config"
	"github.com/eaasxt/farmhand/internal/identity"
)

// rootState carries config and the shared flag values into subcommands.
type rootState struct {
	cfg config.Config

	project   string
	agentName string
	serverURL string
	apiKey    string
}

// NewRootCmd builds the farmhand command tree.
func NewRootCmd() *cobra.Command {
	st := &rootState{}

	cmd := &cobra.Command{
		Use:           "farmhand",
		Short:         "Advisory file reservations for coordinated multi-agent work",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st.cfg = cfg
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&st.project, "project", "", "project key (default from config or working directory)")
	pf.StringVar(&st.agentName, "agent", "", "agent name (default from "+identity.EnvAgent+")")
	pf.StringVar(&st.serverURL, "server", "", "server base URL (default from config addr)")
	pf.StringVar(&st.apiKey, "api-key", "", "bearer key for non-localhost servers")

	cmd.AddCommand(newServeCmd(st))
	cmd.AddCommand(newRegisterCmd(st))
	cmd.AddCommand(newReserveCmd(st))
	cmd.AddCommand(newReleaseCmd(st))
	cmd.AddCommand(newRenewCmd(st))
	cmd.AddCommand(newStatusCmd(st))
	cmd.AddCommand(newReaperCmd(st))
	cmd.AddCommand(newHookCmd(st))
	cmd.AddCommand(newInitKeysCmd(st))

	return cmd
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "farmhand:", err)
		return 1
	}
	return 0
}

func (st *rootState) projectKey() string {
	if st.project != "" {
		return st.project
	}
	return st.cfg.ProjectKey()
}

func (st *rootState) resolver() identity.Resolver {
	if st.agentName != "" || os.Getenv(identity.EnvAgent) != "" {
		return identity.NamedIdentity{Name: st.agentName}
	}
	return identity.SharedIdentity{}
}

func (st *rootState) newClient() *client.Client {
	base := st.serverURL
	if base == "" {
		base = "http://" + hostport(st.cfg.Addr)
	}
	opts := []client.Option{client.WithProject(st.projectKey())}
	if st.apiKey != "" {
		opts = append(opts, client.WithAPIKey(st.apiKey))
	}
	return client.New(base, opts...)
}

// hostport turns a listen address like ":7453" into a dialable host:port.
func hostport(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "127.0.0.1" + addr
	}
	return addr
}
