package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewd/internal/invoke"
	"github.com/joescharf/reviewd/internal/models"
)

func testPolicy() invoke.Policy {
	return invoke.Policy{MaxAttempts: 2, BaseBackoff: time.Millisecond, CallTimeout: time.Second}
}

func newTestClient(t *testing.T, handler http.Handler) *RESTClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New("test-token", invoke.NewLimiter(5, 0),
		WithBaseURL(server.URL), WithPolicy(testPolicy()))
}

func TestDiff(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/pulls/7", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/vnd.github.v3.diff")
		_, _ = w.Write([]byte("diff --git a/main.go b/main.go\n"))
	}))

	diff, err := c.Diff(context.Background(), "owner/repo", 7)
	require.NoError(t, err)
	assert.Contains(t, diff, "diff --git")
}

func TestDiff_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
	}))

	_, err := c.Diff(context.Background(), "owner/repo", 404)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDiff_Unauthorized(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Bad credentials"})
	}))

	_, err := c.Diff(context.Background(), "owner/repo", 1)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestDiff_InvalidRepoName(t *testing.T) {
	c := New("", invoke.NewLimiter(1, 0), WithPolicy(testPolicy()))
	_, err := c.Diff(context.Background(), "not-a-repo", 1)
	assert.Error(t, err)
}

func TestChangedFiles(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/pulls/7/files", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"filename": "main.go", "status": "modified", "changes": 12, "patch": "@@ -1 +1 @@", "raw_url": "https://raw.example/main.go"},
			{"filename": "util.go", "status": "added", "changes": 3},
		})
	}))

	files, err := c.ChangedFiles(context.Background(), "owner/repo", 7)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "main.go", files[0].Path)
	assert.Equal(t, "modified", files[0].Status)
	assert.Equal(t, 12, files[0].Changes)
	assert.Equal(t, "https://raw.example/main.go", files[0].RawURL)
}

func TestFileContent_Cached(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("package main\n"))
	}))
	defer server.Close()

	c := New("", invoke.NewLimiter(5, 0), WithPolicy(testPolicy()))

	content, err := c.FileContent(context.Background(), server.URL+"/raw/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", content)

	_, err = c.FileContent(context.Background(), server.URL+"/raw/main.go")
	require.NoError(t, err)
	assert.Equal(t, 1, hits, "second fetch should come from cache")
}

func TestDiscussion(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/owner/repo/issues/7/comments":
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"body": "looks good", "user": map[string]string{"login": "alice"}},
			})
		case "/repos/owner/repo/pulls/7/reviews":
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"body": "this will not compile", "user": map[string]string{"login": "refbot"}},
				{"body": "", "user": map[string]string{"login": "silent"}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	comments, err := c.Discussion(context.Background(), "owner/repo", 7)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "alice", comments[0].Author)
	assert.Equal(t, "refbot", comments[1].Author)
}

func TestDefaultBranch_Cached(t *testing.T) {
	var hits int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_ = json.NewEncoder(w).Encode(map[string]any{"full_name": "owner/repo", "default_branch": "main"})
	}))

	branch, err := c.DefaultBranch(context.Background(), "owner/repo")
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	_, err = c.DefaultBranch(context.Background(), "owner/repo")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestRetryOnServerError(t *testing.T) {
	var hits int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.github.v3.diff")
		_, _ = w.Write([]byte("diff"))
	}))

	_, err := c.Diff(context.Background(), "owner/repo", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}
