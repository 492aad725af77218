package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new quit repository in the target directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(false)
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}
		defer repo.Close()

		fmt.Printf("Initialized quit repository in %s\n", dir)
		return nil
	},
}
