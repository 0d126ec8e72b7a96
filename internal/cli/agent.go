package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eaasxt/farmhand/client"
	"github.com/eaasxt/farmhand/internal/identity"
	"github.com/eaasxt/farmhand/internal/state"
)

func newRegisterCmd(st *rootState) *cobra.Command {
	var program, model string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register this agent with the coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := st.resolver().Resolve(st.projectKey())
			if err != nil {
				return err
			}

			agent, err := st.newClient().Register(cmd.Context(), id.AgentName, program, model)
			if err != nil {
				return err
			}

			cache := state.NewCache(st.cfg.DataDir)
			if err := cache.Save(id.CacheKey, state.LocalAgentState{
				Registered: true,
				AgentName:  agent.Name,
			}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "registered as %s in %s\n", agent.Name, agent.Project)
			return nil
		},
	}
	cmd.Flags().StringVar(&program, "program", "", "program driving this agent")
	cmd.Flags().StringVar(&model, "model", "", "model driving this agent")
	return cmd
}

func newReserveCmd(st *rootState) *cobra.Command {
	var (
		shared bool
		reason string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "reserve PATTERN...",
		Short: "Reserve path patterns before editing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, cached, cache, err := st.loadIdentity()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = st.cfg.DefaultTTL
			}

			reservations, err := st.newClient().Reserve(cmd.Context(), agentNameOf(id.AgentName, cached), args, !shared, reason, ttl)
			if err != nil {
				var conflict *client.ConflictError
				if errors.As(err, &conflict) {
					fmt.Fprintln(cmd.OutOrStdout(), "conflict:")
					for _, c := range conflict.Conflicts {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s held by %s (expires %s)\n", c.PathPattern, c.AgentName, c.ExpiresAt)
					}
				}
				return err
			}

			cached.Reservations = mergePatterns(cached.Reservations, args)
			if err := cache.Save(id.CacheKey, cached); err != nil {
				return err
			}

			for _, r := range reservations {
				fmt.Fprintf(cmd.OutOrStdout(), "reserved %s until %s\n", r.PathPattern, r.ExpiresAt)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&shared, "shared", false, "allow other shared claims to overlap")
	cmd.Flags().StringVar(&reason, "reason", "", "why these paths are reserved")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "reservation lifetime (default from config)")
	return cmd
}

func newReleaseCmd(st *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release [PATTERN...]",
		Short: "Release reservations (all of them without arguments)",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, cached, cache, err := st.loadIdentity()
			if err != nil {
				return err
			}

			count, err := st.newClient().Release(cmd.Context(), agentNameOf(id.AgentName, cached), args)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				cached.Reservations = nil
			} else {
				cached.Reservations = removePatterns(cached.Reservations, args)
			}
			if err := cache.Save(id.CacheKey, cached); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "released %d reservation(s)\n", count)
			return nil
		},
	}
	return cmd
}

func newRenewCmd(st *rootState) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "renew [PATTERN...]",
		Short: "Extend reservations and refresh liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, cached, _, err := st.loadIdentity()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = st.cfg.DefaultTTL
			}

			count, err := st.newClient().Renew(cmd.Context(), agentNameOf(id.AgentName, cached), args, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renewed %d reservation(s)\n", count)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "new lifetime from now (default from config)")
	return cmd
}

func newStatusCmd(st *rootState) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show active reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := ""
			if !all {
				id, cached, _, err := st.loadIdentity()
				if err != nil {
					return err
				}
				agent = agentNameOf(id.AgentName, cached)
			}

			reservations, err := st.newClient().List(cmd.Context(), agent)
			if err != nil {
				return err
			}
			if len(reservations) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no active reservations")
				return nil
			}
			for _, r := range reservations {
				mode := "exclusive"
				if !r.Exclusive {
					mode = "shared"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\texpires %s\n", r.Agent, r.PathPattern, mode, r.ExpiresAt)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "every agent's reservations, not just this one's")
	return cmd
}

// loadIdentity resolves the invoking identity and its cached state.
func (st *rootState) loadIdentity() (identity.Identity, state.LocalAgentState, *state.Cache, error) {
	id, err := st.resolver().Resolve(st.projectKey())
	if err != nil {
		return identity.Identity{}, state.LocalAgentState{}, nil, err
	}
	cache := state.NewCache(st.cfg.DataDir)
	cached, err := cache.Load(id.CacheKey)
	if err != nil {
		return identity.Identity{}, state.LocalAgentState{}, nil, err
	}
	return id, cached, cache, nil
}

// agentNameOf prefers the explicit identity name, falling back to what
// registration recorded in the cache.
func agentNameOf(explicit string, cached state.LocalAgentState) string {
	if explicit != "" {
		return explicit
	}
	return cached.AgentName
}

func mergePatterns(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, p := range existing {
		seen[p] = true
	}
	for _, p := range added {
		if !seen[p] {
			out = append(out, p)
			seen[p] = true
		}
	}
	return out
}

func removePatterns(existing, removed []string) []string {
	drop := make(map[string]bool, len(removed))
	for _, p := range removed {
		drop[p] = true
	}
	var out []string
	for _, p := range existing {
		if !drop[p] {
			out = append(out, p)
		}
	}
	return out
}
