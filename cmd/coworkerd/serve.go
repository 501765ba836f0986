package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vikramships/coworker-core/agent"
	"github.com/vikramships/coworker-core/config"
	"github.com/vikramships/coworker-core/gate"
	"github.com/vikramships/coworker-core/logger"
	"github.com/vikramships/coworker-core/metrics"
	"github.com/vikramships/coworker-core/paths"
	"github.com/vikramships/coworker-core/router"
	"github.com/vikramships/coworker-core/search"
	"github.com/vikramships/coworker-core/store"
	"github.com/vikramships/coworker-core/title"
	"github.com/vikramships/coworker-core/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon on stdin/stdout",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if logPath, err := logger.DefaultLogPath(); err == nil {
		if err := logger.Init(logPath); err != nil {
			fmt.Fprintf(os.Stderr, "logging to file disabled: %v\n", err)
		}
	}
	defer logger.Close()
	logger.SetDebug(flagDebug)
	log := logger.WithComponent("daemon")

	dbPath := flagDBPath
	if dbPath == "" {
		var err error
		dbPath, err = paths.DatabasePath()
		if err != nil {
			return fmt.Errorf("resolving database path: %w", err)
		}
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer st.Close()

	var routerOpts []router.Option
	cfg, err := config.Load()
	if err != nil {
		log.Warn("config unreadable, continuing without it", "error", err)
	} else if cfg != nil {
		if gen := title.NewModelGenerator(cfg.ActiveProviderConfig()); gen != nil {
			routerOpts = append(routerOpts, router.WithTitleGenerator(gen))
		}
	}

	var runnerOpts []agent.CLIOption
	if flagAgentBin != "" {
		runnerOpts = append(runnerOpts, agent.WithBinary(flagAgentBin))
	}
	runner := agent.NewCLIRunner(runnerOpts...)

	r := router.New(st, gate.New(), runner, search.NewService(), routerOpts...)
	tr := transport.New(r, os.Stdin, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tr.Serve(ctx)
	})

	if flagMetrics != "" {
		metrics.Init()
		srv := &http.Server{Addr: flagMetrics, Handler: metrics.Handler()}
		g.Go(func() error {
			log.Info("serving metrics", "addr", flagMetrics)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Info("daemon started", "db", dbPath)
	err = g.Wait()

	// Best-effort abort of anything still running before the process exits.
	r.AbortAll()
	r.Wait()

	if err != nil && err != context.Canceled {
		return err
	}
	log.Info("daemon stopped")
	return nil
}
