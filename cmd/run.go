package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clarioo/compare-cli/internal/compare"
	"github.com/clarioo/compare-cli/internal/model"
	"github.com/clarioo/compare-cli/internal/project"
)

var (
	runProjects []string
	runExport   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the comparison for one or more project files to completion",
	Long:  "Registers each project, resumes from persisted state and drives both stages until every criterion settles. Ctrl-C pauses; the next run resumes where it stopped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		projects := make([]model.Project, 0, len(runProjects))
		for _, path := range runProjects {
			p, err := project.Load(path)
			if err != nil {
				return err
			}
			projects = append(projects, p)
		}

		env, err := initEnv(cmd.Context(), "run")
		if err != nil {
			return err
		}
		defer env.Close()

		sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(sigCtx)
		for _, p := range projects {
			g.Go(func() error {
				o, err := env.Manager.Register(cmd.Context(), p)
				if err != nil {
					return err
				}
				if err := drive(gctx, o); err != nil {
					return err
				}

				printStatus(cmd.OutOrStdout(), o.Project(), o.Snapshot())
				if runExport != "" {
					return writeExport(o, exportPath(runExport, p.ID, len(projects) > 1))
				}
				return nil
			})
		}
		return g.Wait()
	},
}

// drive starts the run and blocks until it finishes. Cancelling ctx pauses
// the run and waits for in-flight calls to settle.
func drive(ctx context.Context, o *compare.Orchestrator) error {
	log := zap.L().With(zap.String("project_id", o.Project().ID))
	if !o.Start() {
		log.Info("nothing to run")
		return nil
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			log.Info("interrupted, pausing")
			o.Pause()
		case <-done:
		}
	}()
	defer close(done)

	if err := o.Wait(context.Background()); err != nil {
		return eris.Wrapf(err, "run %s", o.Project().ID)
	}
	return nil
}

// exportPath derives a per-project file name when several projects share
// one --export target.
func exportPath(path, projectID string, multi bool) string {
	if !multi {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + projectID + ext
}

func init() {
	runCmd.Flags().StringSliceVar(&runProjects, "project", nil, "project definition YAML file (repeatable)")
	runCmd.Flags().StringVar(&runExport, "export", "", "write the finished matrix to this .xlsx or .json file")
	_ = runCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(runCmd)
}
