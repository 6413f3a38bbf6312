package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"malipo/internal/auth"
	"malipo/internal/db"
	"malipo/internal/mailer"
	"malipo/internal/notifications"
	"malipo/internal/payments"
	"malipo/internal/ratelimiter"
	"malipo/internal/reference"
	"malipo/internal/settings"
	"malipo/internal/store"

	"github.com/9ssi7/exponent"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	defaultRequests := 60
	defaultEnabled := true

	requestsPerTimeFrame := defaultRequests
	if val, exists := os.LookupEnv("RATELIMITER_REQUESTS_COUNT"); exists {
		if parsedVal, err := strconv.Atoi(val); err == nil {
			requestsPerTimeFrame = parsedVal
		} else {
			fmt.Println("Invalid RATELIMITER_REQUESTS_COUNT, defaulting to", defaultRequests)
		}
	}

	enabled := defaultEnabled
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", defaultEnabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: requestsPerTimeFrame,
		TimeFrame:            5 * time.Second,
		Enabled:              enabled,
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	level := zapcore.InfoLevel

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)

	logger := zap.New(core)
	return logger.Sugar(), nil
}

var version = "1.0.0"

//	@title			Malipo Payments API
//	@description	Two-gateway article-processing-fee checkout: M-Pesa Daraja STK push and Stripe embedded checkout.

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
//	@description

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on the environment")
	}

	maxConns := int32(10)
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("Invalid value for DB_MAX_CONNS: %v", err)
		}
		maxConns = int32(parsed)
	}
	maxIdleTime := os.Getenv("DB_MAX_IDLE_TIME")
	if maxIdleTime == "" {
		maxIdleTime = "15m"
	}

	cfg := config{
		addr:        os.Getenv("ADDR"),
		env:         os.Getenv("ENV"),
		apiURL:      os.Getenv("EXTERNAL_URL"),
		frontendURL: os.Getenv("FRONTEND_URL"),
		pluginName:  "malipo",
		db: dbConfig{
			addr:        os.Getenv("DB_ADDR"),
			maxConns:    maxConns,
			maxIdleTime: maxIdleTime,
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				secret:        os.Getenv("AUTH_TOKEN_SECRET"),
				refreshSecret: os.Getenv("AUTH_TOKEN_REFRESH_SECRET"),
				accessExp:     time.Hour * 24,
				refreshExp:    time.Hour * 24 * 7,
				iss:           "malipo",
			},
			admin: adminConfig{
				email:        os.Getenv("ADMIN_EMAIL"),
				passwordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
			},
		},
		push: pushConfig{
			adminTokens: splitList(os.Getenv("ADMIN_EXPO_PUSH_TOKENS")),
		},
		rateLimiter: LoadRateLimiterConfig(),
	}

	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	// Database
	pool, err := db.New(cfg.db.addr, cfg.db.maxConns, cfg.db.maxIdleTime)
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()
	logger.Info("database connection pool established")

	storage := store.NewStorage(pool)

	// Typed per-context gateway settings
	settingsSvc := settings.NewService(storage.Settings)

	// Gateway manager: adapters are built per request from the context's
	// stored credentials, so misconfiguration fails before any provider
	// call.
	manager := payments.NewManager()
	manager.Register(payments.GatewayMpesa, func(ctx context.Context, contextID int64) (payments.Gateway, error) {
		mpesaCfg, err := settingsSvc.Mpesa(ctx, contextID)
		if err != nil {
			return nil, err
		}
		return payments.NewDarajaAdapter(mpesaCfg), nil
	})
	manager.Register(payments.GatewayStripe, func(ctx context.Context, contextID int64) (payments.Gateway, error) {
		stripeCfg, err := settingsSvc.Stripe(ctx, contextID)
		if err != nil {
			return nil, err
		}
		return payments.NewStripeAdapter(stripeCfg), nil
	})

	// Merchant references on STK pushes and receipts
	refs, err := reference.NewGenerator(os.Getenv("REFERENCE_SALT"), "MLP")
	if err != nil {
		logger.Fatal(err)
	}

	// Receipt mailer (optional)
	var mailClient mailer.Client
	if host := os.Getenv("SMTP_HOST"); host != "" {
		port := 587
		if v := os.Getenv("SMTP_PORT"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				port = parsed
			}
		}
		smtp, err := mailer.NewSMTPClient(host, port,
			os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"), os.Getenv("SMTP_FROM_EMAIL"))
		if err != nil {
			logger.Fatal(err)
		}
		mailClient = smtp
	} else {
		logger.Warn("SMTP not configured, receipt emails disabled")
	}

	// Admin push notifications (optional)
	var push notifications.PushSender
	if len(cfg.push.adminTokens) > 0 {
		push = notifications.NewExpoAdapter(exponent.NewClient())
	}

	// Gateway logo delivery (optional)
	var cld *cloudinary.Cloudinary
	if cloudinaryURL := os.Getenv("CLOUDINARY_URL"); cloudinaryURL != "" {
		cld, err = cloudinary.NewFromURL(cloudinaryURL)
		if err != nil {
			logger.Fatal(err)
		}
	}

	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	jwtAuthenticator := auth.NewJWTAuthenticator(
		cfg.auth.token.secret,
		cfg.auth.token.refreshSecret,
		cfg.auth.token.iss,
		cfg.auth.token.iss,
		cfg.auth.token.accessExp,
		cfg.auth.token.refreshExp,
	)

	app := &application{
		config:        cfg,
		store:         storage,
		logger:        logger,
		payments:      manager,
		settings:      settingsSvc,
		authenticator: jwtAuthenticator,
		rateLimiter:   rateLimiter,
		refs:          refs,
		mailer:        mailClient,
		push:          push,
		cld:           cld,
	}

	// Metrics collected at /v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		return pool.Stat()
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
