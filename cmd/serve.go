package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewd/internal/api"
	"github.com/joescharf/reviewd/internal/daemon"
	"github.com/joescharf/reviewd/internal/github"
	"github.com/joescharf/reviewd/internal/models"
	"github.com/joescharf/reviewd/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review HTTP API server",
	Long:  "Start an HTTP server exposing the review API.\nBy default it listens on port 8080. Use --port to change it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := configDirFunc()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		pf := daemon.NewPIDFile(filepath.Join(dir, "reviewd.pid"))
		if err := pf.Acquire(); err != nil {
			return err
		}
		defer func() { _ = pf.Remove() }()

		s, err := getStore()
		if err != nil {
			return err
		}

		srv := api.NewServer(s,
			func(token string) api.Runner { return &lazyRunner{token: token} },
			func(token string) github.Client { return newGitHubClient(token) },
			nil)

		addr := fmt.Sprintf(":%d", viper.GetInt("port"))
		httpSrv := &http.Server{
			Addr:    addr,
			Handler: srv.Router(),
		}

		errCh := make(chan error, 1)
		go func() {
			ui.Info("Serving review API at http://localhost%s", addr)
			errCh <- httpSrv.ListenAndServe()
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-stop:
			ui.Info("Shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(ctx)
		}
	},
}

// lazyRunner defers pipeline construction to the first request so that
// serve can start without an Anthropic key and fail per-request instead.
type lazyRunner struct {
	token string
}

func (l *lazyRunner) Run(ctx context.Context, req models.ReviewRequest) (*pipeline.ReviewState, error) {
	p, err := newPipeline(l.token)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, req)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}
