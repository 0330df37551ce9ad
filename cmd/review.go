package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/reviewd/internal/health"
	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/output"
	"github.com/joescharf/reviewd/internal/pipeline"
)

var (
	reviewRequirements string
	reviewMarkdown     bool
	reviewOutputPath   string
)

var reviewCmd = &cobra.Command{
	Use:   "review <owner/repo> <pr-number>",
	Short: "Review a pull request and print the findings",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := args[0]
		if !strings.Contains(repo, "/") {
			return fmt.Errorf("repository must be owner/name, got %q", repo)
		}
		prNumber, err := strconv.Atoi(args[1])
		if err != nil || prNumber <= 0 {
			return fmt.Errorf("invalid pull request number %q", args[1])
		}

		p, err := newPipeline("")
		if err != nil {
			return err
		}
		s, err := getStore()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		ui.Info("Reviewing %s#%d", repo, prNumber)
		state, err := p.Run(ctx, models.ReviewRequest{
			RepoFullName: repo,
			PRNumber:     prNumber,
			Requirements: reviewRequirements,
		})
		if err != nil {
			return err
		}

		rec := state.Record()
		if err := s.SaveReview(ctx, &rec); err != nil {
			return err
		}

		ui.Success("Review %s finished: verdict %s, %d finding(s)",
			rec.ID, output.VerdictColor(rec.Verdict), len(rec.Findings))
		if err := ui.FindingsTable(rec.Findings); err != nil {
			return err
		}

		risk := riskFor(state)
		ui.Info("Merge risk: %d/100 (%s)", risk.Total, risk.Level())

		if reviewOutputPath != "" {
			if err := os.WriteFile(reviewOutputPath, []byte(rec.ReportMarkdown), 0644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			ui.Info("Report written to %s", reviewOutputPath)
		} else if reviewMarkdown {
			fmt.Fprintln(ui.Out)
			fmt.Fprint(ui.Out, rec.ReportMarkdown)
		}
		return nil
	},
}

// riskFor maps a finished pipeline state onto the risk scorer's inputs.
func riskFor(state *pipeline.ReviewState) *health.RiskScore {
	in := health.ReviewInputs{
		Blocked:  state.Blocked(),
		Findings: state.Findings,
	}
	if state.Analysis != nil {
		in.SemanticDegraded = state.Analysis.SemanticFailure != ""
		in.SkippedDetectors = len(state.Analysis.SkippedDetectors)
	}
	return health.NewScorer().Score(in)
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().StringVarP(&reviewRequirements, "requirements", "r", "", "Requirements or focus areas for the semantic pass")
	reviewCmd.Flags().BoolVarP(&reviewMarkdown, "markdown", "m", false, "Print the full markdown report")
	reviewCmd.Flags().StringVarP(&reviewOutputPath, "output", "o", "", "Write the markdown report to a file")
}
