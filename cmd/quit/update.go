package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aksw/quit-go/internal/transport"
)

var (
	updateRef          string
	updateUsingGraphs  []string
	updateUsingNamed   []string
)

var updateCmd = &cobra.Command{
	Use:   "update <sparql>",
	Short: "Run a SPARQL update against a ref, producing one new commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(false)
		if err != nil {
			return err
		}
		defer repo.Close()

		h := transport.New(repo)
		res := h.Sparql(context.Background(), transport.SparqlRequest{
			Ref:            updateRef,
			Update:         args[0],
			UsingGraphURIs: updateUsingGraphs,
			UsingNamedURIs: updateUsingNamed,
		})
		if res.Err != nil {
			return fmt.Errorf("update: %w", res.Err)
		}
		fmt.Printf("updated %s -> %s\n", res.Update.Before, res.Update.After)
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateRef, "ref", "", "branch to update (default: HEAD)")
	updateCmd.Flags().StringArrayVar(&updateUsingGraphs, "using-graph", nil, "using-graph-uri override, repeatable")
	updateCmd.Flags().StringArrayVar(&updateUsingNamed, "using-named-graph", nil, "using-named-graph-uri override, repeatable")
}
