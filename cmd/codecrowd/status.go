package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rostilos/codecrow/internal/config"
	"github.com/rostilos/codecrow/internal/logging"
	"github.com/rostilos/codecrow/internal/store"
)

var statusProjectID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status and a summary of a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusProjectID == "" {
			return fmt.Errorf("--project is required")
		}

		cfg, _, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Development)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		db, err := store.Open(cfg.DatabaseDSN, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		projects := store.NewProjectRepository(db.Conn())
		project, err := projects.Get(ctx, statusProjectID)
		if err != nil {
			return fmt.Errorf("load project: %w", err)
		}

		printMigrationStatus(db)
		printProjectSummary(project)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusProjectID, "project", "", "Project id to report on")
}

func printMigrationStatus(db *store.DB) {
	fmt.Println(color.CyanString("=== Migrations ==="))
	if err := store.MigrationStatus(db.SQLDB()); err != nil {
		fmt.Println(color.RedString("  failed to read migration status: %v", err))
	}
	fmt.Println()
}

func printProjectSummary(project *store.Project) {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false

	tbl.AppendHeader(table.Row{"field", "value"})
	tbl.AppendRow(table.Row{"id", project.ID})
	tbl.AppendRow(table.Row{"name", project.Name})
	tbl.AppendRow(table.Row{"vcs provider", project.VcsConnection.Provider})
	tbl.AppendRow(table.Row{"default branch", defaultBranchLabel(project.DefaultBranch)})
	tbl.AppendRow(table.Row{"pr analysis enabled", project.PrAnalysisEnabled})
	tbl.AppendRow(table.Row{"branch analysis enabled", project.BranchAnalysisEnabled})
	tbl.AppendRow(table.Row{"rag enabled", project.RagConfig.Enabled})

	fmt.Println(color.CyanString("=== Project ==="))
	fmt.Println(tbl.Render())
}

func defaultBranchLabel(b *string) string {
	if b == nil {
		return "(none yet)"
	}
	return *b
}
