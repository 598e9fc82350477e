package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clarioo/compare-cli/internal/compare"
	"github.com/clarioo/compare-cli/internal/export"
)

var (
	exportProjectID string
	exportFormat    string
	exportOut       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a project's comparison matrix to Excel or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		o, err := env.Manager.Get(cmd.Context(), exportProjectID)
		if errors.Is(err, compare.ErrProjectNotFound) {
			return fmt.Errorf("project %q is not registered", exportProjectID)
		}
		if err != nil {
			return err
		}

		out, err := exportTarget(exportProjectID, exportFormat, exportOut)
		if err != nil {
			return err
		}
		return writeExport(o, out)
	},
}

// exportTarget resolves the output path. An explicit format overrides the
// extension of out; otherwise the extension picks the format.
func exportTarget(projectID, format, out string) (string, error) {
	switch format {
	case "", "xlsx", "json":
	default:
		return "", eris.Errorf("unsupported export format %q (want xlsx or json)", format)
	}
	if out == "" {
		if format == "" {
			format = "xlsx"
		}
		return projectID + "-comparison." + format, nil
	}
	if format != "" && formatOf(out) != format {
		out = strings.TrimSuffix(out, filepath.Ext(out)) + "." + format
	}
	return out, nil
}

// formatOf maps a file extension to an export format, defaulting to xlsx.
func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "xlsx"
}

// writeExport renders the orchestrator's current state to path, picking the
// format from the extension.
func writeExport(o *compare.Orchestrator, path string) (err error) {
	doc := export.Build(o.Project(), o.Snapshot(), time.Now().UTC())

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "close %s", path)
		}
	}()

	var write func(io.Writer, export.Document) error = export.WriteXLSX
	if formatOf(path) == "json" {
		write = export.WriteJSON
	}
	if err := write(f, doc); err != nil {
		return err
	}

	zap.L().Info("comparison exported", zap.String("project_id", doc.Project.ID), zap.String("path", path))
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportProjectID, "project-id", "", "project id")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "xlsx or json (default from --out extension, else xlsx)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default <project-id>-comparison.<format>)")
	_ = exportCmd.MarkFlagRequired("project-id")
	rootCmd.AddCommand(exportCmd)
}
