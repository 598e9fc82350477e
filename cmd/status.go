package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/clarioo/compare-cli/internal/compare"
	"github.com/clarioo/compare-cli/internal/model"
)

var statusProjectID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print per-criterion progress for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		o, err := env.Manager.Get(cmd.Context(), statusProjectID)
		if errors.Is(err, compare.ErrProjectNotFound) {
			return fmt.Errorf("project %q is not registered", statusProjectID)
		}
		if err != nil {
			return err
		}

		printStatus(cmd.OutOrStdout(), o.Project(), o.Snapshot())
		return nil
	},
}

// printStatus writes one line per criterion: cell progress, ranking status
// and stars, followed by a totals line.
func printStatus(w io.Writer, p model.Project, run *model.ComparisonRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "CRITERION\tCELLS\tFAILED\tRANKING\tSTARS\n")

	var done, failed, ranked int
	for _, c := range p.Criteria {
		row := run.Criteria[c.ID]
		var rowDone, rowFailed int
		for _, v := range p.Vendors {
			switch row.Cells[v.ID].State {
			case model.CellStateCompleted:
				rowDone++
			case model.CellStateFailed:
				rowFailed++
			}
		}
		stars := "-"
		if row.StarsAwarded != nil {
			stars = fmt.Sprint(*row.StarsAwarded)
		}
		ranking := string(row.Stage2Status)
		if row.Stage2Status == model.Stage2Failed && row.Stage2Error != "" {
			ranking += ": " + row.Stage2Error
		}
		if row.Stage2Status == model.Stage2Completed {
			ranked++
		}
		done += rowDone
		failed += rowFailed
		_, _ = fmt.Fprintf(tw, "%s\t%d/%d\t%d\t%s\t%s\n", c.Name, rowDone, len(p.Vendors), rowFailed, ranking, stars)
	}
	_ = tw.Flush()

	state := "idle"
	if run.IsPaused {
		state = "paused"
	}
	_, _ = fmt.Fprintf(w, "\n%s: %d/%d cells, %d failed, %d/%d criteria ranked (%s)\n",
		p.Name, done, len(p.Criteria)*len(p.Vendors), failed, ranked, len(p.Criteria), state)
}

func init() {
	statusCmd.Flags().StringVar(&statusProjectID, "project-id", "", "project id")
	_ = statusCmd.MarkFlagRequired("project-id")
	rootCmd.AddCommand(statusCmd)
}
