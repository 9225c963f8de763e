package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cleancredit/internal/api"
	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/notify"
	"github.com/sells-group/cleancredit/internal/store"
	"github.com/sells-group/cleancredit/internal/watch"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Start the dirtiness and reward HTTP API",
	Annotations: validates("serve"),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return runServer(ctx, fmt.Sprintf(":%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runServer wires the store, estimator, engine and publisher into the API
// and serves until ctx is cancelled.
func runServer(ctx context.Context, addr string) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	est, err := loadEstimator(ctx, st)
	if err != nil {
		return err
	}
	holder := dirtiness.NewHolder(est)

	pub, err := notify.Connect(cfg.MQTT)
	if err != nil {
		zap.L().Warn("mqtt unavailable, reward events will not be published", zap.Error(err))
	}
	defer pub.Close()

	reloader := watch.NewReloader(st, holder, pub, estimatorOptions()...)
	srv := &http.Server{
		Addr: addr,
		Handler: api.New(api.Deps{
			Holder:    holder,
			Engine:    loadEngine(),
			Ledger:    st,
			Reloader:  reloader,
			Publisher: pub,
		}, api.Options{
			CORSOrigins:    cfg.Server.CORSOrigins,
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if fs, ok := st.(*store.FileStore); ok && cfg.Store.Watch {
		g.Go(func() error {
			return watch.ReloadOnChange(fs.Path(), reloader).Run(gctx)
		})
	}

	return g.Wait()
}
