package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core"
	"github.com/cosmicds/cds-api/core/apikey"
	"github.com/cosmicds/cds-api/core/eclipse"
	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
	metricsvc "github.com/cosmicds/cds-api/services/metrics"
)

type (
	Options struct {
		Address        string
		Debug          bool
		TestMode       bool
		DisableReqLogs bool
		RequireAPIKey  bool
		Logger         core.Logger
		Metrics        *metricsvc.Metrics          // nil disables /metrics
		StatusCheck    func(context.Context) error // run after server errors; a shutdown error stops the server
		RosterSvc      *roster.Service
		HubbleSvc      *hubble.Service
		EclipseSvc     *eclipse.Service
		APIKeySvc      *apikey.Service
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts       *Options
		app        *echo.Echo
		validate   *validator.Validate
		translator ut.Translator
	}
)

var _ Server = (*server)(nil)

// NewServer returns the API server. shutdown is called when a handler reports a core shutdown error.
func NewServer(shutdown chan<- struct{}, opts *Options) Server {
	validate, translator := core.NewValidator()
	s := &server{
		opts:       opts,
		app:        echo.New(),
		validate:   validate,
		translator: translator,
	}
	s.setup(shutdown)
	return s
}

func (s *server) setup(shutdown chan<- struct{}) {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.opts.Debug || s.opts.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if s.opts.Metrics != nil {
		s.app.Use(metricsMiddleware(s.opts.Metrics))
		s.app.GET("/metrics", echo.WrapHandler(s.opts.Metrics.Handler()))
	}

	signalShutdown := func() {
		if shutdown != nil {
			select {
			case shutdown <- struct{}{}:
			default:
			}
		}
	}
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.translator, s.opts.StatusCheck, signalShutdown)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", s.home)

	g := s.app.Group("")
	if s.opts.RequireAPIKey {
		g.Use(apiKeyMiddleware(s.opts.APIKeySvc))
	}

	registerRosterAPI(g, s.opts.RosterSvc, s.validate)
	registerHubbleAPI(g.Group("/hubbles_law"), s.opts.HubbleSvc, s.opts.RosterSvc, s.opts.Metrics, s.validate)
	registerEclipseAPI(g.Group("/solar-eclipse-2024"), s.opts.EclipseSvc, s.validate)
}

func (s *server) Start() error {
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "starting server")
	}
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	message := "Welcome to the CosmicDS server!"
	if s.opts.RequireAPIKey {
		if _, err := s.opts.APIKeySvc.Verify(ctx.Request().Context(), ctx.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			message += " You'll need to include a valid API key with your requests in order to access other endpoints."
		}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": message})
}
