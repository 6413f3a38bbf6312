package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"malipo/docs" //this is required to generate swagger docs
	"malipo/internal/auth"
	"malipo/internal/mailer"
	"malipo/internal/notifications"
	"malipo/internal/payments"
	"malipo/internal/ratelimiter"
	"malipo/internal/reference"
	"malipo/internal/settings"
	"malipo/internal/store"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type application struct {
	config        config
	store         store.Storage
	logger        *zap.SugaredLogger
	payments      *payments.Manager
	settings      *settings.Service
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
	refs          *reference.Generator

	// Optional collaborators; settlement side effects are skipped when nil.
	mailer mailer.Client
	push   notifications.PushSender
	cld    *cloudinary.Cloudinary
}

type config struct {
	addr        string
	env         string
	apiURL      string
	frontendURL string
	pluginName  string
	db          dbConfig
	auth        authConfig
	push        pushConfig
	rateLimiter ratelimiter.Config
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
	admin adminConfig
}

type tokenConfig struct {
	secret        string
	refreshSecret string
	accessExp     time.Duration
	refreshExp    time.Duration
	iss           string
}

type basicConfig struct {
	user string
	pass string
}

// adminConfig is the single operator account allowed to manage gateway
// settings. The password is stored as a bcrypt hash, never plaintext.
type adminConfig struct {
	email        string
	passwordHash string
}

type pushConfig struct {
	adminTokens []string
}

type dbConfig struct {
	addr        string
	maxConns    int32
	maxIdleTime string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Callbacks from the providers must answer within this window or the
	// provider retries; everything else just benefits from the bound.
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		docsURL := fmt.Sprintf("%s/swagger/doc.json", app.config.addr)
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docsURL)))

		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		r.Route("/payment/{contextID}/"+app.config.pluginName, func(r chi.Router) {
			r.Use(app.RateLimiterMiddleware)

			r.Post("/payment-form/{queuedPaymentID}", app.paymentFormHandler)
			r.Post("/init-payment-intent/{queuedPaymentID}", app.initPaymentIntentHandler)
			r.Post("/stripe-callback/{queuedPaymentID}", app.stripeCallbackHandler)
			r.Post("/daraja-callback/{queuedPaymentID}", app.darajaCallbackHandler)
			r.Post("/stk-status/{queuedPaymentID}", app.stkStatusHandler)

			r.Post("/stripe-webhook", app.stripeWebhookHandler)
		})

		r.Route("/contexts/{contextID}/payment-settings", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Get("/", app.getPaymentSettingsHandler)
			r.Put("/", app.updatePaymentSettingsHandler)
		})

		r.With(app.AuthTokenMiddleware).
			Get("/contexts/{contextID}/payments/{queuedPaymentID}/events", app.listPaymentEventsHandler)

		r.Route("/authentication", func(r chi.Router) {
			r.Post("/token", app.createTokenHandler)
			r.Post("/refresh", app.refreshTokenHandler)
		})
	})
	return r
}

// healthCheckHandler godoc
//
//	@Summary		Health check
//	@Description	Reports service health, environment and version
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/health [get]
func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	data := map[string]string{
		"status":  "ok",
		"env":     app.config.env,
		"version": version,
	}
	if err := app.jsonResponse(w, http.StatusOK, data); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) run(mux http.Handler) error {
	// Docs
	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.Host = app.config.apiURL
	docs.SwaggerInfo.BasePath = "/v1"

	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
