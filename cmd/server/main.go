package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jscharber/costlens/internal/api"
	"github.com/jscharber/costlens/internal/database"
	"github.com/jscharber/costlens/pkg/collection"
	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/insights"
	"github.com/jscharber/costlens/pkg/insights/anomaly"
	"github.com/jscharber/costlens/pkg/insights/forecast"
	"github.com/jscharber/costlens/pkg/insights/recommend"
	"github.com/jscharber/costlens/pkg/insights/trend"
	"github.com/jscharber/costlens/pkg/logger"
	"github.com/jscharber/costlens/pkg/normalize"
	"github.com/jscharber/costlens/pkg/providers"
	awsprovider "github.com/jscharber/costlens/pkg/providers/aws"
	"github.com/jscharber/costlens/pkg/quality"
	"github.com/jscharber/costlens/pkg/queue"
)

const version = "1.0.0"

func main() {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		awsProfile  = flag.String("aws-profile", "", "AWS shared config profile for Cost Explorer")
		sqsQueueURL = flag.String("sqs-queue-url", "", "SQS queue URL for collection requests (in-memory queue when empty)")
		sqsDLQURL   = flag.String("sqs-dlq-url", "", "SQS dead-letter queue URL")
		noScheduler = flag.Bool("no-scheduler", false, "Disable the collection scheduler")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("costlens server v%s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLogLevel(cfg.LogLevel),
		Format:  logger.ParseLogFormat(cfg.LogFormat),
		Service: "costlens",
		Version: version,
	})
	logger.SetDefault(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := database.NewConnection(cfg.Database)
	if err != nil {
		appLogger.Fatal("database connection failed: %v", err)
	}
	defer conn.Close()

	clientStore := database.NewClientStore(conn)
	costStore := database.NewCostStore(conn)

	adapters := make(map[costdata.CloudProvider]providers.Adapter)
	awsAdapter, err := awsprovider.New(ctx, *awsProfile, awsprovider.WithLogger(appLogger))
	if err != nil {
		appLogger.Warn("AWS adapter unavailable, AWS collection disabled: %v", err)
	} else {
		adapters[costdata.ProviderAWS] = awsAdapter
	}

	normalizer := normalize.New(nil, cfg.Quality.ProviderTotalTolerance)
	validator := quality.NewEngine(cfg.Quality, appLogger)
	orchestrator := collection.NewOrchestrator(
		cfg.Collection, clientStore, adapters, normalizer, validator, costStore, appLogger)

	requestQueue, deadLetter, err := buildQueues(ctx, *sqsQueueURL, *sqsDLQURL)
	if err != nil {
		appLogger.Fatal("queue setup failed: %v", err)
	}
	scheduler := collection.NewScheduler(cfg.Scheduler, clientStore, requestQueue, deadLetter, orchestrator, appLogger)
	if !*noScheduler {
		if err := scheduler.Start(ctx); err != nil {
			appLogger.Fatal("scheduler start failed: %v", err)
		}
		defer scheduler.Stop()
	}

	workflow := insights.NewWorkflow(
		cfg.Insights,
		clientStore,
		costStore,
		anomaly.NewDetector(cfg.Anomaly, appLogger),
		trend.NewAnalyzer(cfg.Trend, appLogger),
		forecast.NewForecaster(cfg.Forecast, appLogger),
		recommend.NewEngine(cfg.Recommendation, appLogger),
		insights.NewAggregator(cfg.Insights, appLogger),
		insights.NewRanker(),
		nil,
		appLogger,
	)

	server := api.NewServer(cfg.Server, appLogger, conn,
		api.NewCollectionController(orchestrator, appLogger),
		api.NewInsightsController(workflow, appLogger),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			appLogger.Fatal("server error: %v", err)
		}
	case <-ctx.Done():
		appLogger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			appLogger.Error("server shutdown: %v", err)
		}
	}
}

// buildQueues selects SQS transport when URLs are provided, in-memory
// queues otherwise.
func buildQueues(ctx context.Context, queueURL, dlqURL string) (queue.Queue, queue.Queue, error) {
	if queueURL == "" {
		return queue.NewMemoryQueue(), queue.NewMemoryQueue(), nil
	}

	requests, err := queue.NewSQSQueue(ctx, queueURL)
	if err != nil {
		return nil, nil, err
	}
	if dlqURL == "" {
		return requests, queue.NewMemoryQueue(), nil
	}
	deadLetter, err := queue.NewSQSQueue(ctx, dlqURL)
	if err != nil {
		return nil, nil, err
	}
	return requests, deadLetter, nil
}
