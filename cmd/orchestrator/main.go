// Command orchestrator runs the work-task orchestration service with local
// backends and in-memory stores.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/weny2000/AIAgentSample-sub006/internal/analysis"
	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/backends"
	"github.com/weny2000/AIAgentSample-sub006/internal/config"
	"github.com/weny2000/AIAgentSample-sub006/internal/conversation"
	"github.com/weny2000/AIAgentSample-sub006/internal/domain"
	"github.com/weny2000/AIAgentSample-sub006/internal/knowledge"
	"github.com/weny2000/AIAgentSample-sub006/internal/logging"
	"github.com/weny2000/AIAgentSample-sub006/internal/notification"
	"github.com/weny2000/AIAgentSample-sub006/internal/quality"
	"github.com/weny2000/AIAgentSample-sub006/internal/sensitivity"
	"github.com/weny2000/AIAgentSample-sub006/internal/service"
	"github.com/weny2000/AIAgentSample-sub006/internal/store/memstore"
	"github.com/weny2000/AIAgentSample-sub006/internal/todograph"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "orchestrator",
		Short:        "Work-task intelligent orchestration service",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.AddCommand(serve)
	return root
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewComponentLogger("orchestrator")
	logger.Info("starting work-task orchestrator %s", version)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, orchestrator, dispatcher, bus, err := wire(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	// Bridge engine events into outbound notifications.
	events, cancelEvents := svc.SubscribeEvents(domain.EventFilter{}, 256)
	defer cancelEvents()
	go dispatcher.Run(ctx, events)
	go orchestrator.RunSweeper(ctx, cfg.Conversation.SweepInterval)

	metricsServer := &http.Server{
		Addr:              ":9090",
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return metricsServer.Shutdown(shutdownCtx)
}

func wire(cfg *config.Config) (*service.Service, *conversation.Orchestrator, *notification.Dispatcher, *todograph.Bus, error) {
	breakerCfg := apperrors.CircuitBreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          cfg.Breaker.Timeout,
	}
	breakers := apperrors.NewCircuitBreakerManager(breakerCfg)

	tasks := memstore.NewTaskStore()
	sessions := memstore.NewSessionStore()
	objects := memstore.NewEncryptedObjectStore(backends.NewLocalKMS(nil), "deliverables")

	nlp := backends.NewLocalNLP()
	policy := &sensitivity.DataProtectionPolicy{
		ApprovalThreshold: cfg.Sensitivity.ApprovalThreshold,
		AutoMask:          cfg.Sensitivity.AutoMask,
	}
	gate := sensitivity.NewGate(nlp, breakers.Get("pii-recognizer"), nil)

	search, err := knowledge.NewChromemBackend("knowledge", nil, nil)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	directory := knowledge.NewDirectory(knowledge.DefaultWorkgroups())
	resolver := knowledge.NewResolver(directory, search, breakers.Get("knowledge-search"), cfg.Analysis.TopK)

	bus := todograph.NewBus()
	pipeline := analysis.NewPipeline(tasks, gate, resolver, nlp, breakers.Get("nlp"), analysis.Options{
		Policy:  policy,
		Metrics: analysis.MustNewMetrics(prometheus.DefaultRegisterer),
		Timeout: cfg.Analysis.RunTimeout,
		Bus:     bus,
	})

	engine := todograph.NewEngine(tasks, bus, nil, todograph.MustNewMetrics(prometheus.DefaultRegisterer))

	qualityPolicy := quality.DefaultPolicy()
	if cfg.Quality.PolicyPath != "" {
		qualityPolicy, err = quality.LoadPolicy(cfg.Quality.PolicyPath)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}
	machine := quality.NewMachine(tasks, objects, backends.NewLocalRules(), gate, bus, nil, qualityPolicy)

	orchestrator := conversation.NewOrchestrator(sessions, nlp, breakers.Get("summarizer"), bus, nil)
	dispatcher := notification.NewDispatcher(backends.NewLogTransport(), breakers.Get("notify"))

	svc := service.New(service.Deps{
		Tasks:        tasks,
		Sessions:     sessions,
		Gate:         gate,
		Policy:       policy,
		Pipeline:     pipeline,
		Engine:       engine,
		Quality:      machine,
		Conversation: orchestrator,
		Dispatcher:   dispatcher,
		Bus:          bus,
	})
	return svc, orchestrator, dispatcher, bus, nil
}
