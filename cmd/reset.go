package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clarioo/compare-cli/internal/compare"
)

var resetProjectID string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase a project's persisted comparison state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		o, err := env.Manager.Get(ctx, resetProjectID)
		switch {
		case errors.Is(err, compare.ErrProjectNotFound):
			// No project definition, but stray records may still exist.
			if err := env.Store.ClearComparison(ctx, resetProjectID); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := o.Reset(ctx); err != nil {
				return err
			}
		}

		zap.L().Info("comparison reset", zap.String("project_id", resetProjectID))
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", resetProjectID)
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetProjectID, "project-id", "", "project id")
	_ = resetCmd.MarkFlagRequired("project-id")
	rootCmd.AddCommand(resetCmd)
}
