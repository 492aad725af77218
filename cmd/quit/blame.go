package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var blameCmd = &cobra.Command{
	Use:   "blame <ref-or-oid> <graph-iri>",
	Short: "Show the last commit that introduced each triple in a graph",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(false)
		if err != nil {
			return err
		}
		defer repo.Close()

		blame, err := repo.Blame(context.Background(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("blame: %w", err)
		}
		for _, b := range blame {
			oid := "?"
			if b.Commit != nil {
				oid = b.Commit.OID
			}
			fmt.Printf("%s  %s\n", oid, b.Triple.String())
		}
		return nil
	},
}
