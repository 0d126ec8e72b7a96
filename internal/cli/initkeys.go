package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eaasxt/farmhand/internal/auth"
)

func newInitKeysCmd(st *rootState) *cobra.Command {
	var keysPath string
	cmd := &cobra.Command{
		Use:   "init-keys",
		Short: "Generate an API key for a project and append it to the keys file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keysPath == "" {
				keysPath = auth.ResolveKeysPath()
			}
			key, err := auth.AppendProjectKey(keysPath, st.projectKey())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added key for %s to %s\n%s\n", st.projectKey(), keysPath, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&keysPath, "keys-file", "", "keys file path (default from FARMHAND_KEYS_FILE or farmhand.keys.yaml)")
	return cmd
}
