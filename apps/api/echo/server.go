package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/elimulabs/elimu/apps/api/echo/handlers"
	"github.com/elimulabs/elimu/apps/api/echo/helpers"
	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/course"
	"github.com/elimulabs/elimu/core/gamify"
	"github.com/elimulabs/elimu/core/leaderboard"
	"github.com/elimulabs/elimu/core/notification"
	"github.com/elimulabs/elimu/core/referral"
	"github.com/elimulabs/elimu/core/user"
	"github.com/elimulabs/elimu/core/video"
	"github.com/elimulabs/elimu/core/wallet"
)

type (
	ServerDeps struct {
		Conf   *core.Config
		Logger core.Logger

		UserSvc         user.Service
		GamifySvc       gamify.Service
		ReferralSvc     referral.Service
		WalletSvc       wallet.Service
		LeaderboardSvc  leaderboard.Service
		CourseSvc       course.Service
		NotificationSvc notification.Service
		VideoValidator  *video.Validator

		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps       ServerDeps
		app        *echo.Echo
		errCh      chan error
		shutdownCh chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:       deps,
		app:        echo.New(),
		errCh:      make(chan error, 1),
		shutdownCh: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdownCh, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = helpers.NewAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := helpers.ConfigureAuth(conf.AppName, conf.SecretKey, conf.JWTExpirationDelta, conf.JWTRefreshExpirationDelta)

	handlers.RegisterUserAPI(v1, jwt, handlers.UserDeps{
		UserSvc:         s.deps.UserSvc,
		GamifySvc:       s.deps.GamifySvc,
		ReferralSvc:     s.deps.ReferralSvc,
		NotificationSvc: s.deps.NotificationSvc,
		Logger:          s.deps.Logger,
	})
	handlers.RegisterGamifyAPI(v1, jwt, s.deps.GamifySvc, s.deps.NotificationSvc, s.deps.Logger)
	handlers.RegisterReferralAPI(v1, jwt, s.deps.ReferralSvc, s.deps.GamifySvc, s.deps.NotificationSvc, s.deps.Logger)
	handlers.RegisterWalletAPI(v1, jwt, s.deps.WalletSvc)
	handlers.RegisterLeaderboardAPI(v1, jwt, s.deps.LeaderboardSvc)
	handlers.RegisterCourseAPI(v1, jwt, handlers.CourseDeps{
		CourseSvc:       s.deps.CourseSvc,
		UserSvc:         s.deps.UserSvc,
		GamifySvc:       s.deps.GamifySvc,
		NotificationSvc: s.deps.NotificationSvc,
		VideoValidator:  s.deps.VideoValidator,
		Logger:          s.deps.Logger,
	})
	handlers.RegisterNotificationAPI(v1, jwt, s.deps.NotificationSvc)
}

// signalShutdown is called by the error handler on unrecoverable errors.
func (s *server) signalShutdown() {
	s.shutdownCh <- syscall.SIGTERM
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errCh <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error { return s.errCh }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdownCh }

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Elimu API!")
}
