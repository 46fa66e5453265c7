package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/cosmicds/cds-api/apps/api/echo"
	"github.com/cosmicds/cds-api/core"
	"github.com/cosmicds/cds-api/core/apikey"
	"github.com/cosmicds/cds-api/core/eclipse"
	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
	cachesvc "github.com/cosmicds/cds-api/services/cache"
	logsvc "github.com/cosmicds/cds-api/services/logger"
	metricsvc "github.com/cosmicds/cds-api/services/metrics"
	"github.com/cosmicds/cds-api/storage/database"
	inmemdb "github.com/cosmicds/cds-api/storage/database/inmem"
	sqlxrepos "github.com/cosmicds/cds-api/storage/database/sqlx"
)

type repositories struct {
	roster  roster.Repository
	hubble  hubble.Repository
	eclipse eclipse.Repository
	apikey  apikey.Repository

	statusCheck func(context.Context) error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.LoadConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	repos, closeDB, err := setUpRepositories(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err := closeDB(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up cache
	var cache core.Cache
	if conf.Redis.URL != "" {
		redisCache, err := cachesvc.NewRedisCache(conf.Redis, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
		}
		defer redisCache.Close()
		cache = redisCache
	}

	// set up services
	rosterSvc := roster.NewService(repos.roster, logger)
	hubbleSvc := hubble.NewService(repos.hubble, rosterSvc, logger, cache)
	rosterSvc.OnClassCreated(hubbleSvc.ClassSetup)
	eclipseSvc := eclipse.NewService(repos.eclipse, logger)
	apiKeySvc := apikey.NewService(repos.apikey, logger)

	var metrics *metricsvc.Metrics
	if conf.Metrics {
		metrics = metricsvc.New()
	}

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	shutdown := make(chan struct{}, 1)
	server := echoapi.NewServer(shutdown, &echoapi.Options{
		Address:       conf.Server.Address,
		Debug:         conf.Debug,
		TestMode:      conf.TestMode,
		RequireAPIKey: conf.RequireAPIKey,
		Logger:        logger,
		Metrics:       metrics,
		RosterSvc:     rosterSvc,
		HubbleSvc:     hubbleSvc,
		EclipseSvc:    eclipseSvc,
		APIKeySvc:     apiKeySvc,
		StatusCheck:   repos.statusCheck,
	})

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Error(fmt.Sprintf("server error: %v", err), err)
		}
		return

	case sig := <-signals:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	case <-shutdown:
		logger.Info("Shutdown requested by a handler")
	}

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}

func setUpRepositories(conf *core.Config) (repositories, func() error, error) {
	if conf.Database.InMemory() {
		db := inmemdb.Open()
		return repositories{
			roster:  inmemdb.NewRosterRepository(db),
			hubble:  inmemdb.NewHubbleRepository(db),
			eclipse: inmemdb.NewEclipseRepository(db),
			apikey:  inmemdb.NewAPIKeyRepository(db),
		}, func() error { return nil }, nil
	}

	db, err := setUpDB(conf)
	if err != nil {
		return repositories{}, nil, err
	}
	repos := repositories{
		roster:  sqlxrepos.NewRosterRepository(db),
		hubble:  sqlxrepos.NewHubbleRepository(db),
		eclipse: sqlxrepos.NewEclipseRepository(db),
		apikey:  sqlxrepos.NewAPIKeyRepository(db),
	}
	repos.statusCheck = func(ctx context.Context) error {
		return database.StatusCheck(ctx, db)
	}
	return repos, db.Close, nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
