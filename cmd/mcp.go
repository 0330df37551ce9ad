package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/reviewd/internal/mcp"
	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/pipeline"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets agent tooling run reviews and fetch stored reports natively.
Configure with:

  {
    "mcpServers": {
      "reviewd": { "command": "reviewd", "args": ["mcp"] }
    }
  }

Available tools: review_pull_request, get_review_report, list_reviews`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		srv := mcp.NewServer(s, &mcpRunner{})
		return srv.ServeStdio(cmd.Context())
	},
}

// mcpRunner builds the pipeline per call so a missing API key surfaces
// as a tool error, not a startup failure.
type mcpRunner struct{}

func (mcpRunner) Run(ctx context.Context, req models.ReviewRequest) (*pipeline.ReviewState, error) {
	p, err := newPipeline("")
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, req)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
