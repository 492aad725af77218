package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aksw/quit-go/internal/transport"
)

var mergeMethod string

var mergeCmd = &cobra.Command{
	Use:   "merge <target> <branch>",
	Short: "Merge branch into target using --method (three-way or context)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(false)
		if err != nil {
			return err
		}
		defer repo.Close()

		h := transport.New(repo)
		res := h.Merge(context.Background(), transport.MergeRequest{
			Target: args[0],
			Branch: args[1],
			Method: mergeMethod,
		})
		if res.Err != nil {
			return fmt.Errorf("merge: %w", res.Err)
		}
		if len(res.Conflicts) > 0 {
			fmt.Printf("merge produced %d conflict(s):\n", len(res.Conflicts))
			for _, c := range res.Conflicts {
				fmt.Printf("  [%s] %s: %s\n", c.Kind, c.Graph, c.Description)
			}
			return fmt.Errorf("merge: unresolved conflicts")
		}
		fmt.Printf("merged %s into %s\n", args[1], args[0])
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringVar(&mergeMethod, "method", "three-way", "merge method: three-way or context")
}
