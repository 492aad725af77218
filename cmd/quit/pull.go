package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull <remote> [ref]",
	Short: "Fetch a remote and fast-forward or merge the local ref",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(false)
		if err != nil {
			return err
		}
		defer repo.Close()

		var ref string
		if len(args) == 2 {
			ref = args[1]
		}
		if err := repo.Pull(context.Background(), args[0], ref); err != nil {
			return fmt.Errorf("pull: %w", err)
		}
		fmt.Printf("pulled from %s\n", args[0])
		return nil
	},
}
