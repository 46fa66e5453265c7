package main

import (
	"log"
	"os"

	"github.com/cosmicds/cds-api/core"
	"github.com/cosmicds/cds-api/core/apikey"
	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
	logsvc "github.com/cosmicds/cds-api/services/logger"
	"github.com/cosmicds/cds-api/storage/database"
	sqlxrepos "github.com/cosmicds/cds-api/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.LoadConfig()
	errAndDie(err)
	if conf.Database.InMemory() {
		logger.Fatal("the admin CLI needs a SQL database, not the in-memory store")
	}
	appLogger := logsvc.NewRollbarLogger(logger, conf)
	defer appLogger.Close()

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	// start CLI
	rosterSvc := roster.NewService(sqlxrepos.NewRosterRepository(db), appLogger)
	hubbleSvc := hubble.NewService(sqlxrepos.NewHubbleRepository(db), rosterSvc, appLogger, nil)
	rosterSvc.OnClassCreated(hubbleSvc.ClassSetup)
	cli := commandLine{
		db:        db,
		out:       os.Stdout,
		rosterSvc: rosterSvc,
		hubbleSvc: hubbleSvc,
		apiKeySvc: apikey.NewService(sqlxrepos.NewAPIKeyRepository(db), appLogger),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		db.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
