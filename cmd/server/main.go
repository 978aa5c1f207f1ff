package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"rl-orchestrator/api/rest/handlers"
	"rl-orchestrator/api/rest/routes"
	"rl-orchestrator/config"
	"rl-orchestrator/core/admission"
	"rl-orchestrator/core/dispatch"
	"rl-orchestrator/core/initializer"
	"rl-orchestrator/core/metrics"
	"rl-orchestrator/core/monitoring"
	"rl-orchestrator/core/quota"
	"rl-orchestrator/core/repository"
	"rl-orchestrator/core/stopper"
	"rl-orchestrator/core/workflow"
	awsprov "rl-orchestrator/providers/aws"
)

func main() {
	cfg := config.Load()
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database and repositories
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	if err := db.InitSchema(); err != nil {
		logrus.WithError(err).Fatal("failed to initialize schema")
	}
	logrus.Info("database connected")

	modelRepo := repository.NewModelRepository(db)
	jobRepo := repository.NewJobRepository(db)
	quotaRepo := repository.NewQuotaRepository(db)
	boardRepo := repository.NewLeaderboardRepository(db)

	// AWS collaborators
	clients, err := awsprov.NewClients(ctx, cfg.AWSRegion)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize aws clients")
	}
	objectStore := awsprov.NewObjectStore(clients.S3, cfg.ArtifactBucket)
	queue := awsprov.NewDispatchQueue(clients.SQS, cfg.DispatchQueueURL)
	executor := awsprov.NewExecutor(clients.SageMaker, awsprov.ExecutorConfig{
		RoleARN:       cfg.SageMakerRoleARN,
		TrainingImage: cfg.TrainingImage,
		InstanceType:  cfg.InstanceType,
		Bucket:        cfg.ArtifactBucket,
	})
	telemetry := awsprov.NewTelemetryProvisioner(clients.KinesisVideo)

	// Core services
	quotaHelper := quota.NewHelper(quotaRepo)
	router := workflow.NewHelper(jobRepo)
	admit := admission.NewService(modelRepo, jobRepo, boardRepo, quotaHelper, queue)
	jobInit := initializer.New(router, modelRepo, quotaRepo, objectStore, telemetry, executor)
	stop := stopper.NewCoordinator(modelRepo, jobRepo, executor, cfg.CancelPollInterval, cfg.CancelPollTimeout)
	aggregator := metrics.NewAggregator(quotaRepo, modelRepo, jobRepo, boardRepo, cfg.MetricsFanOut)

	// Background loops
	consumer := dispatch.NewConsumer(queue, jobInit)
	go consumer.Start(ctx)

	monitor := monitoring.NewJobMonitor(jobRepo, modelRepo, quotaHelper, executor, cfg.FinalizeSweepInterval)
	go monitor.Start(ctx)

	// REST surface
	r := mux.NewRouter()
	routes.SetupRoutes(r,
		handlers.NewModelHandler(admit, stop, modelRepo),
		handlers.NewMetricsHandler(aggregator, quotaHelper),
	)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		logrus.WithField("port", cfg.ServerPort).Info("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down")
	cancel()
	if err := server.Shutdown(context.Background()); err != nil {
		logrus.WithError(err).Fatal("forced shutdown")
	}
	logrus.Info("server exited")
}
