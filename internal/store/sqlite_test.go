package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewd/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReview(id string) *models.Review {
	return &models.Review{
		ID:             id,
		RepoFullName:   "acme/api",
		PRNumber:       42,
		Verdict:        "blocked",
		Language:       "c",
		ReportMarkdown: "# Code Review: acme/api#42\n",
		Findings: []models.Finding{
			{
				File:       "main.c",
				Line:       12,
				Severity:   models.SeverityCritical,
				Category:   models.CategoryBug,
				Title:      "SyntaxError",
				Detail:     "missing semicolon",
				Provenance: models.ProvenanceDeterministic,
				Confidence: models.ConfidenceHigh,
			},
		},
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestSaveAndGetReview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleReview("")
	err := s.SaveReview(ctx, r)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.RepoFullName, got.RepoFullName)
	assert.Equal(t, r.PRNumber, got.PRNumber)
	assert.Equal(t, r.Verdict, got.Verdict)
	assert.Equal(t, "c", got.Language)
	assert.Equal(t, r.ReportMarkdown, got.ReportMarkdown)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, models.SeverityCritical, got.Findings[0].Severity)
	assert.Equal(t, "SyntaxError", got.Findings[0].Title)
}

func TestGetReview_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetReview(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSaveReview_ReplacesExistingID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleReview("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.NoError(t, s.SaveReview(ctx, r))

	r.Verdict = "compilable"
	r.ReportMarkdown = "# updated\n"
	require.NoError(t, s.SaveReview(ctx, r))

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "compilable", got.Verdict)
	assert.Equal(t, "# updated\n", got.ReportMarkdown)

	all, err := s.ListReviews(ctx, ReviewListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListReviews_FiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := sampleReview("")
	older.RepoFullName = "acme/api"
	older.PRNumber = 1
	older.Verdict = "compilable"
	older.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveReview(ctx, older))

	newer := sampleReview("")
	newer.RepoFullName = "acme/api"
	newer.PRNumber = 2
	newer.Verdict = "blocked"
	newer.CreatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveReview(ctx, newer))

	other := sampleReview("")
	other.RepoFullName = "acme/web"
	other.CreatedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveReview(ctx, other))

	// newest first
	all, err := s.ListReviews(ctx, ReviewListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "acme/web", all[0].RepoFullName)

	byRepo, err := s.ListReviews(ctx, ReviewListFilter{RepoFullName: "acme/api"})
	require.NoError(t, err)
	require.Len(t, byRepo, 2)
	assert.Equal(t, 2, byRepo[0].PRNumber)

	byVerdict, err := s.ListReviews(ctx, ReviewListFilter{RepoFullName: "acme/api", Verdict: "compilable"})
	require.NoError(t, err)
	require.Len(t, byVerdict, 1)
	assert.Equal(t, 1, byVerdict[0].PRNumber)

	limited, err := s.ListReviews(ctx, ReviewListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDeleteReview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleReview("")
	require.NoError(t, s.SaveReview(ctx, r))
	require.NoError(t, s.DeleteReview(ctx, r.ID))

	_, err := s.GetReview(ctx, r.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = s.DeleteReview(ctx, r.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestExportIsByteIdentical(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleReview("")
	require.NoError(t, s.SaveReview(ctx, r))

	first, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	second, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte(r.ReportMarkdown), []byte(first.ReportMarkdown))
	assert.Equal(t, first.ReportMarkdown, second.ReportMarkdown)
}
