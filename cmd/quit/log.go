package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log [ref]",
	Short: "Show commit history for a ref (default: HEAD)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(false)
		if err != nil {
			return err
		}
		defer repo.Close()

		var ref string
		if len(args) == 1 {
			ref = args[0]
		}
		commits, err := repo.Log(context.Background(), ref, logLimit)
		if err != nil {
			return fmt.Errorf("log: %w", err)
		}
		for _, c := range commits {
			fmt.Printf("commit %s\n", c.OID)
			fmt.Printf("Author: %s <%s>\n", c.Author.Name, c.Author.Email)
			fmt.Printf("Date:   %s\n", c.Time.Format(time.RFC1123Z))
			fmt.Printf("\n\t%s\n\n", c.Message)
		}
		return nil
	},
}

func init() {
	logCmd.Flags().IntVar(&logLimit, "limit", 0, "maximum number of commits to show (0 means no limit)")
}
