package main

import (
	"context"
	"fmt"

	"github.com/cayleygraph/quad"
	"github.com/spf13/cobra"

	"github.com/aksw/quit-go/internal/transport"
	"github.com/aksw/quit-go/pkg/quadstore"
)

var (
	queryRef           string
	queryDefaultGraphs []string
	queryNamedGraphs   []string
)

var queryCmd = &cobra.Command{
	Use:   "query <sparql>",
	Short: "Run a SPARQL query against a ref (default: HEAD)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(false)
		if err != nil {
			return err
		}
		defer repo.Close()

		h := transport.New(repo)
		res := h.Sparql(context.Background(), transport.SparqlRequest{
			Ref:              queryRef,
			Query:            args[0],
			DefaultGraphURIs: queryDefaultGraphs,
			NamedGraphURIs:   queryNamedGraphs,
			Accept:           "application/sparql-results+json",
		})
		if res.Err != nil {
			return fmt.Errorf("query: %w", res.Err)
		}
		printQueryResult(*res.Query)
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryRef, "ref", "", "branch or commit to query (default: HEAD)")
	queryCmd.Flags().StringArrayVar(&queryDefaultGraphs, "default-graph", nil, "default-graph-uri override, repeatable")
	queryCmd.Flags().StringArrayVar(&queryNamedGraphs, "named-graph", nil, "named-graph-uri override, repeatable")
}

func printQueryResult(res quadstore.QueryResult) {
	switch res.Kind {
	case quadstore.ResultBoolean:
		fmt.Println(res.Boolean)
	case quadstore.ResultGraph:
		for _, t := range res.Graph {
			fmt.Println(t.String())
		}
	default:
		for _, row := range res.Solutions {
			for _, v := range res.Variables {
				term, ok := row[v]
				if !ok {
					continue
				}
				fmt.Printf("%s=%s ", v, termString(term))
			}
			fmt.Println()
		}
	}
}

func termString(t quadstore.Term) string {
	if t == nil {
		return ""
	}
	return quad.StringOf(t)
}
