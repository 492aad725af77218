package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aksw/quit-go/internal/transport"
)

var provenanceCmd = &cobra.Command{
	Use:   "provenance <sparql>",
	Short: "Run a SPARQL query against the provenance dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(true)
		if err != nil {
			return err
		}
		defer repo.Close()

		h := transport.New(repo)
		res := h.Provenance(context.Background(), args[0], "application/sparql-results+json")
		if res.Err != nil {
			return fmt.Errorf("provenance: %w", res.Err)
		}
		printQueryResult(*res.Query)
		return nil
	},
}
