package reference

import (
	"context"
	"strings"

	"github.com/joescharf/reviewd/internal/github"
	"github.com/joescharf/reviewd/internal/models"
)

// DiscussionStrategy scans the change's existing discussion threads for
// comments authored by the reference bot and extracts them heuristically.
// Used when the structured API is unavailable or unconfigured.
type DiscussionStrategy struct {
	gh        github.Client
	signature string // bot login prefix, e.g. "refbot"
}

// NewDiscussionStrategy creates the fallback strategy. Signature is matched
// case-insensitively against comment author logins.
func NewDiscussionStrategy(gh github.Client, signature string) *DiscussionStrategy {
	return &DiscussionStrategy{gh: gh, signature: strings.ToLower(signature)}
}

func (s *DiscussionStrategy) Name() string { return "discussion" }

// Fetch pulls the PR discussion and keeps only the reference bot's comments.
func (s *DiscussionStrategy) Fetch(ctx context.Context, req models.ReviewRequest) (*Result, error) {
	comments, err := s.gh.Discussion(ctx, req.RepoFullName, req.PRNumber)
	if err != nil {
		return nil, err
	}

	var parts []string
	for _, c := range comments {
		if !s.fromReferenceBot(c.Author) {
			continue
		}
		body := strings.TrimSpace(c.Body)
		if body == "" {
			continue
		}
		parts = append(parts, body)
	}
	if len(parts) == 0 {
		return nil, errNoBotComments
	}
	return &Result{
		OK:      true,
		Source:  "discussion",
		Summary: truncate(strings.Join(parts, "\n\n"), 12000),
	}, nil
}

func (s *DiscussionStrategy) fromReferenceBot(author string) bool {
	if s.signature == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(author), s.signature)
}

type noBotCommentsError struct{}

func (noBotCommentsError) Error() string { return "no reference bot comments on change" }

var errNoBotComments = noBotCommentsError{}
