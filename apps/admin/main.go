package main

import (
	"context"
	"log"
	"os"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/gamify"
	"github.com/elimulabs/elimu/core/wallet"
	"github.com/elimulabs/elimu/storage/database"
	sqlxrepos "github.com/elimulabs/elimu/storage/database/sqlx"
)

var (
	build  = "develop" // injected via -ldflags
	logger *log.Logger
)

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig(build)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(err)
	}
	defer db.Close()

	walletSvc := wallet.NewService(sqlxrepos.NewTransactionRepository(db))
	gamifySvc := gamify.NewService(sqlxrepos.NewProfileRepository(db), walletSvc, nopNotifier{}, nopLogger{})

	// start CLI
	cli := commandLine{
		db:        db.DB,
		usrRepo:   sqlxrepos.NewUserRepository(db),
		gamifySvc: gamifySvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

// the CLI runs one-shot commands; no cache to invalidate, nothing to log
type (
	nopNotifier struct{}
	nopLogger   struct{}
)

func (nopNotifier) ProfileChanged(ctx context.Context, userID string) error { return nil }

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
