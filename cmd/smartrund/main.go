package main

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

	"github.com/awaistahir/smart-run-planner/internal/config"
	"github.com/awaistahir/smart-run-planner/internal/engine"
	"github.com/awaistahir/smart-run-planner/internal/logger"
	"github.com/awaistahir/smart-run-planner/internal/metrics"
	"github.com/awaistahir/smart-run-planner/internal/store"
	"github.com/awaistahir/smart-run-planner/internal/uiapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func main() {
	var cfgFile string
	var port int
	var dbPath string

	rootCmd := &cobra.Command{
		Use:          "smartrund",
		Short:        "SmartRun HTTP server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			log := logger.New("smartrund", cfg.Log.Level)

			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}
			st, err := store.NewStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			obs, err := metrics.NewObserver(reg)
			if err != nil {
				return err
			}

			opts := []uiapi.Option{
				uiapi.WithObserver(obs),
				uiapi.WithMetrics(reg),
				uiapi.WithLogger(log),
			}
			exact, err := engine.OpenExact(cfg.Solver.Backend, cfg.Solver.Options(), log)
			switch {
			case err == nil:
				opts = append(opts, uiapi.WithExact(exact))
			case engine.IsDependency(err):
				log.Warnf("exact strategy disabled: %v", err)
			default:
				return err
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           uiapi.NewServer(st, opts...).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Infof("SmartRun server starting on port %d", cfg.Server.Port)
				log.Infof("Database: %s", cfg.DBPath)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Infof("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.smartrun/config.yaml)")
	rootCmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port (default from config)")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "Database path")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
