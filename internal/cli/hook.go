package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/eaasxt/farmhand/internal/hooks"
)

// newHookCmd builds the hidden hook entry points. They are invoked by the
// coding tool, not by people, and they must exit 0 no matter what: a
// non-zero exit or garbage on stdout would break the tool's session.
func newHookCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hook",
		Short:  "Hook handlers invoked by the coding tool",
		Hidden: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:    "pretooluse",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st.hookHandler().PreToolUse(cmd.Context(), os.Stdin, os.Stdout)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "sessionstart",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st.hookHandler().SessionStart(cmd.Context(), os.Stdin, os.Stdout)
			return nil
		},
	})

	return cmd
}

func (st *rootState) hookHandler() *hooks.Handler {
	// Hook diagnostics go to stderr; stdout is reserved for the decision
	// payload the tool parses.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg := st.cfg
	if st.project != "" {
		cfg.Project = st.project
	}
	return hooks.New(cfg, st.resolver(), log)
}
