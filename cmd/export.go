package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joescharf/reviewd/internal/output"
	"github.com/joescharf/reviewd/internal/store"
)

var exportOutputPath string

var exportCmd = &cobra.Command{
	Use:   "export <review-id>",
	Short: "Export the stored markdown report for a review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		review, err := s.GetReview(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if exportOutputPath != "" {
			if err := os.WriteFile(exportOutputPath, []byte(review.ReportMarkdown), 0644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			ui.Success("Report written to %s", exportOutputPath)
			return nil
		}
		fmt.Fprint(ui.Out, review.ReportMarkdown)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reviews, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		repo, _ := cmd.Flags().GetString("repo")
		limit, _ := cmd.Flags().GetInt("limit")
		reviews, err := s.ListReviews(cmd.Context(), store.ReviewListFilter{RepoFullName: repo, Limit: limit})
		if err != nil {
			return err
		}
		if len(reviews) == 0 {
			ui.Info("no stored reviews")
			return nil
		}

		table := ui.Table([]string{"ID", "REPO", "PR", "VERDICT", "FINDINGS", "CREATED"})
		for _, r := range reviews {
			if err := table.Append([]string{
				r.ID,
				r.RepoFullName,
				fmt.Sprintf("#%d", r.PRNumber),
				output.VerdictColor(r.Verdict),
				fmt.Sprintf("%d", len(r.Findings)),
				r.CreatedAt.Format("2006-01-02 15:04"),
			}); err != nil {
				return err
			}
		}
		return table.Render()
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "", "Write the report to a file instead of stdout")
	rootCmd.AddCommand(exportCmd)

	listCmd.Flags().String("repo", "", "Filter by repository full name")
	listCmd.Flags().Int("limit", 20, "Maximum reviews to list")
	rootCmd.AddCommand(listCmd)
}
