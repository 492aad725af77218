package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var branchFrom string

var branchCmd = &cobra.Command{
	Use:   "branch <name>",
	Short: "Create a new branch from --from (default: HEAD)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(false)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.CreateBranch(context.Background(), branchFrom, args[0]); err != nil {
			return fmt.Errorf("branch: %w", err)
		}
		fmt.Printf("created branch %s from %s\n", args[0], branchFrom)
		return nil
	},
}

var deleteBranchCmd = &cobra.Command{
	Use:   "delete-branch <name>",
	Short: "Delete a branch (not the current HEAD)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(false)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.DeleteBranch(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete-branch: %w", err)
		}
		fmt.Printf("deleted branch %s\n", args[0])
		return nil
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Switch HEAD to an existing branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(false)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.Switch(context.Background(), args[0]); err != nil {
			return fmt.Errorf("switch: %w", err)
		}
		fmt.Printf("switched to %s\n", args[0])
		return nil
	},
}

func init() {
	branchCmd.Flags().StringVar(&branchFrom, "from", "", "ref to branch from (default: HEAD)")
}
