package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/elimulabs/elimu/apps/api/echo"
	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/course"
	"github.com/elimulabs/elimu/core/gamify"
	"github.com/elimulabs/elimu/core/leaderboard"
	"github.com/elimulabs/elimu/core/notification"
	"github.com/elimulabs/elimu/core/referral"
	"github.com/elimulabs/elimu/core/user"
	"github.com/elimulabs/elimu/core/video"
	"github.com/elimulabs/elimu/core/wallet"
	emailsvc "github.com/elimulabs/elimu/services/email"
	logsvc "github.com/elimulabs/elimu/services/logger"
	"github.com/elimulabs/elimu/storage/database"
	sqlxrepos "github.com/elimulabs/elimu/storage/database/sqlx"
	redisstore "github.com/elimulabs/elimu/storage/redis"
)

// build is injected at compile time via -ldflags.
var build = "develop"

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig(build)

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	cache, err := redisstore.NewClient(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
	}
	defer cache.Close()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.SetupMail(conf)

	// repositories
	usrRepo := sqlxrepos.NewUserRepository(db)
	profileRepo := sqlxrepos.NewProfileRepository(db)
	referralRepo := sqlxrepos.NewReferralRepository(db)
	walletRepo := sqlxrepos.NewTransactionRepository(db)
	leaderboardRepo := sqlxrepos.NewLeaderboardRepository(db)
	courseRepo := sqlxrepos.NewCourseRepository(db)
	notifRepo := sqlxrepos.NewNotificationRepository(db)

	// services
	usrSvc := user.NewService(conf, usrRepo, mailSvc)
	walletSvc := wallet.NewService(walletRepo)
	gamifySvc := gamify.NewService(profileRepo, walletSvc, cache, logger)
	referralSvc := referral.NewService(conf, referralRepo, gamifySvc, cache, logger)
	leaderboardSvc := leaderboard.NewService(leaderboardRepo, cache, logger)
	notifSvc := notification.NewService(notifRepo, usrSvc, mailSvc, logger)
	courseSvc := course.NewService(courseRepo, gamifyAwarder{gamifySvc}, logger)
	videoValidator := video.NewValidator(conf.VideoTrustedOrigins...)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// keep the leaderboard warm off profile-change events
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go func() {
		if err := leaderboardSvc.Run(runCtx, cache); err != nil {
			logger.Error(fmt.Sprintf("leaderboard refresher stopped: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		UserSvc:         usrSvc,
		GamifySvc:       gamifySvc,
		ReferralSvc:     referralSvc,
		WalletSvc:       walletSvc,
		LeaderboardSvc:  leaderboardSvc,
		CourseSvc:       courseSvc,
		NotificationSvc: notifSvc,
		VideoValidator:  videoValidator,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// gamifyAwarder adapts the gamify service to the course award hook.
type gamifyAwarder struct {
	svc gamify.Service
}

func (a gamifyAwarder) Award(ctx context.Context, userID string, xp, points int, reason string) error {
	_, err := a.svc.AwardXP(ctx, userID, xp, points, reason)
	return err
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}
