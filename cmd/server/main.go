package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"order-lifecycle-reconciler/internal/config"
	"order-lifecycle-reconciler/internal/controller"
	"order-lifecycle-reconciler/internal/model"
	"order-lifecycle-reconciler/internal/rabbit"
	"order-lifecycle-reconciler/internal/scheduler"
	"order-lifecycle-reconciler/internal/service"
	"order-lifecycle-reconciler/internal/store"
	"order-lifecycle-reconciler/internal/types"
)

var (
	flagDwell       string
	flagCollections string
)

var rootCmd = &cobra.Command{
	Use:           "order-lifecycle-reconciler",
	Short:         "Auto-completes delivered orders once their dwell time has passed",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the scheduler and the broker consumer",
	RunE:  runServe,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation pass and print the result as JSON",
	Example: `  order-lifecycle-reconciler reconcile
  order-lifecycle-reconciler reconcile --dwell 7d --collections transactions,archive`,
	RunE: runReconcile,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print lifecycle statistics as JSON without writing anything",
	RunE:  runStats,
}

func init() {
	for _, cmd := range []*cobra.Command{reconcileCmd, statsCmd} {
		cmd.Flags().StringVar(&flagDwell, "dwell", "", "Dwell threshold override (Go duration or Nd)")
		cmd.Flags().StringVar(&flagCollections, "collections", "", "Comma-separated order collections override")
	}
	rootCmd.AddCommand(serveCmd, reconcileCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func overrides() (time.Duration, []string, error) {
	var dwell time.Duration
	if flagDwell != "" {
		d, err := config.ParseDuration(flagDwell)
		if err != nil || d <= 0 {
			return 0, nil, fmt.Errorf("invalid --dwell %q", flagDwell)
		}
		dwell = d
	}
	var collections []string
	for _, c := range strings.Split(flagCollections, ",") {
		if c = strings.TrimSpace(c); c == "" {
			continue
		}
		if segs, err := store.Split(c); err != nil || len(segs) != 1 {
			return 0, nil, fmt.Errorf("invalid --collections entry %q", c)
		}
		collections = append(collections, c)
	}
	return dwell, collections, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	dwell, collections, err := overrides()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	res, runErr := a.svc.Trigger(ctx, model.TriggerCLI, dwell, collections)
	if res != nil {
		if err := printJSON(res); err != nil {
			return err
		}
	}
	return runErr
}

func runStats(cmd *cobra.Command, _ []string) error {
	dwell, collections, err := overrides()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	stats, statsErr := a.svc.Statistics(ctx, dwell, collections)
	if stats != nil {
		if err := printJSON(stats); err != nil {
			return err
		}
	}
	return statsErr
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))
	cfg, log := a.cfg, a.log

	if a.consumeCh != nil {
		consumer := rabbit.NewTriggerConsumer(a.svc, log)
		if err := rabbit.SetupConsumers(ctx, a.consumeCh, consumer, cfg.ReconcileQueue, cfg.ReconcileExchange, log); err != nil {
			return err
		}
	}

	sched := scheduler.New(cfg.PollInterval, cfg.InitialDelay, func(ctx context.Context) error {
		_, err := a.svc.Trigger(ctx, model.TriggerScheduled, 0, nil)
		if errors.Is(err, service.ErrRunInProgress) {
			return nil
		}
		return err
	}, log)
	go sched.Start(ctx)

	ctl := controller.NewLifecycleController(a.svc, controller.ServiceInfo{
		Name:         serviceName,
		Version:      version,
		PollInterval: cfg.PollInterval,
		StartedAt:    time.Now(),
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           controller.NewRouter(ctl, a.auth, cfg.AllowedOrigins, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, types.ActionServiceStarted, "order lifecycle reconciler listening",
			"port", cfg.Port,
			"poll_interval", cfg.PollInterval.String(),
			"auth_enabled", a.auth.Enabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, types.ActionServiceFailed, "http server failed", err)
			return err
		}
	case <-ctx.Done():
	}

	log.Info(context.WithoutCancel(ctx), types.ActionGracefulShutdown, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
