package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate an empty database with the demo hospital",
		RunE:  runSeed,
	}
	RootCmd.AddCommand(cmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	conn, repo, err := openRepository(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	seeded, err := repo.Seed(cmd.Context())
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if !seeded {
		fmt.Fprintln(cmd.OutOrStdout(), "database already contains data, nothing to do")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "seeded demo hospital data")
	return nil
}
