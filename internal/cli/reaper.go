package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eaasxt/farmhand/internal/state"
	"github.com/eaasxt/farmhand/internal/storage/sqlite"
)

// newReaperCmd builds the operator commands for cleaning up after agents
// that died without releasing. Unlike the hooks these fail loud: an
// operator running the reaper wants to know when the database is broken.
func newReaperCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reaper",
		Short: "Inspect and clean up reservations left by dead agents",
	}
	cmd.AddCommand(newReaperOrphansCmd(st))
	cmd.AddCommand(newReaperReleaseCmd(st))
	cmd.AddCommand(newReaperResetCacheCmd(st))
	return cmd
}

func newReaperOrphansCmd(st *rootState) *cobra.Command {
	var staleAfter time.Duration
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List active reservations whose holders have gone quiet",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.OpenRead(st.cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if staleAfter <= 0 {
				staleAfter = st.cfg.StaleAfter
			}
			orphans, err := store.StaleReservations(cmd.Context(), st.projectKey(), staleAfter)
			if err != nil {
				return err
			}
			if len(orphans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no orphaned reservations")
				return nil
			}
			for _, r := range orphans {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\texpires %s\n",
					r.AgentName, r.PathPattern, r.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "holder inactivity threshold (default from config)")
	return cmd
}

func newReaperReleaseCmd(st *rootState) *cobra.Command {
	var (
		staleAfter  time.Duration
		allProjects bool
	)
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Force-release reservations held by stale or named agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.New(st.cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			// --agent here targets the named holder rather than acting as it.
			if st.agentName != "" {
				count, err := store.ForceReleaseAgent(cmd.Context(), st.projectKey(), st.agentName)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "released %d reservation(s) held by %s\n", count, st.agentName)
				return nil
			}

			if staleAfter <= 0 {
				staleAfter = st.cfg.StaleAfter
			}
			projects := []string{st.projectKey()}
			if allProjects {
				projects, err = store.ProjectKeys(cmd.Context())
				if err != nil {
					return err
				}
			}

			total := 0
			for _, project := range projects {
				released, err := store.ForceReleaseStale(cmd.Context(), project, staleAfter)
				if err != nil {
					return err
				}
				for _, r := range released {
					fmt.Fprintf(cmd.OutOrStdout(), "released %s held by %s in %s\n", r.PathPattern, r.AgentName, project)
				}
				total += len(released)
			}
			if total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to release")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "holder inactivity threshold (default from config)")
	cmd.Flags().BoolVar(&allProjects, "all", false, "sweep every project, not just the current one")
	return cmd
}

func newReaperResetCacheCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-cache",
		Short: "Clear the local state cache for the invoking identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := st.resolver().Resolve(st.projectKey())
			if err != nil {
				return err
			}
			if err := state.NewCache(st.cfg.DataDir).Reset(id.CacheKey); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}
	return cmd
}
