package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"log"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/emberid/ember/api"
	"github.com/emberid/ember/assertion"
	"github.com/emberid/ember/auth"
	"github.com/emberid/ember/config"
	"github.com/emberid/ember/customs"
	"github.com/emberid/ember/domain"
	"github.com/emberid/ember/gormstore"
	"github.com/emberid/ember/logger"
	"github.com/emberid/ember/telemetry"
	"github.com/emberid/ember/totp"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Log.Sync()

	logger.Log.Info("Starting Ember Authentication Core",
		zap.Int("port", cfg.Port),
		zap.String("dsn", cfg.DSN),
	)

	store, err := gormstore.NewStorage(cfg.DBType, cfg.DSN, nil, !cfg.SkipAutoMigrate)
	if err != nil {
		logger.Log.Fatal("failed to initialize token store", zap.Error(err))
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	metrics, err := telemetry.NewProvider(tcfg)
	if err != nil {
		logger.Log.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer metrics.Shutdown(context.Background())

	var checker customs.Checker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		checker = customs.NewRedisChecker(client, "", 10, time.Minute, false)
	} else {
		checker = customs.NewMemoryChecker(10, time.Minute)
	}

	sessions := auth.NewResolver(store, domain.KindSession)
	sessions.SetAuditStore(store)
	sessions.SetTelemetry(metrics)

	params := totp.DefaultParams()
	params.Step = time.Duration(cfg.TOTPStep) * time.Second
	params.Window = cfg.TOTPWindow
	params.Digits = cfg.TOTPDigits

	totpManager := totp.NewManager(store, checker, cfg.TOTPIssuer, params)
	totpManager.SetAuditStore(store)
	totpManager.SetTelemetry(metrics)

	key, err := assertion.LoadSigningKey(cfg.SigningKeyFile)
	if err != nil {
		logger.Log.Warn("signing key file unavailable, generating ephemeral key", zap.Error(err))
		key, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			logger.Log.Fatal("failed to generate signing key", zap.Error(err))
		}
	}

	signer := assertion.NewHTTPSigner(cfg.SignerURL, cfg.OAuthTimeout)
	rpc := assertion.NewRPCClient(cfg.OAuthURL, cfg.OAuthTimeout)
	minter := assertion.NewMinter(signer, rpc, key, assertion.Config{
		Domain:            cfg.SigningDomain,
		CertLifetime:      cfg.CertLifetime,
		AssertionLifetime: cfg.AssertionLifetime,
		OAuthURL:          cfg.OAuthURL,
		ClientID:          cfg.OAuthClientID,
	})
	minter.SetAuditStore(store)
	minter.SetTelemetry(metrics)

	h := api.NewHandler(sessions, totpManager, minter, api.SyntheticEmailResolver(cfg.SigningDomain))

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	g := e.Group("/v1")
	h.RegisterRoutes(g)

	logger.Log.Info("Server is starting", zap.Int("port", cfg.Port))
	if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Log.Fatal("server failed to start", zap.Error(err))
	}
}
