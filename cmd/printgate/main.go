package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/NeuralTrust/PrintGate/pkg/config"
	handlers "github.com/NeuralTrust/PrintGate/pkg/handlers/http"
	wsHandlers "github.com/NeuralTrust/PrintGate/pkg/handlers/websocket"
	infraCache "github.com/NeuralTrust/PrintGate/pkg/infra/cache"
	"github.com/NeuralTrust/PrintGate/pkg/infra/httpx"
	infraLogger "github.com/NeuralTrust/PrintGate/pkg/infra/logger"
	"github.com/NeuralTrust/PrintGate/pkg/infra/printer"
	"github.com/NeuralTrust/PrintGate/pkg/infra/prometheus"
	"github.com/NeuralTrust/PrintGate/pkg/infra/turnstile"
	"github.com/NeuralTrust/PrintGate/pkg/middleware"
	"github.com/NeuralTrust/PrintGate/pkg/ratelimit"
	"github.com/NeuralTrust/PrintGate/pkg/server"
	"github.com/NeuralTrust/PrintGate/pkg/server/router"
	"github.com/NeuralTrust/PrintGate/pkg/version"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := infraLogger.NewLogger(cfg.Log.Level, cfg.Log.File)
	defer closeLogger(logger)

	logger.WithFields(logrus.Fields{
		"app":     version.AppName,
		"version": version.Version,
	}).Info("starting")

	if cfg.Metrics.Enabled {
		prometheus.Initialize()
	}

	proxyCfg := cfg.Proxy()
	warnMissingConfig(logger, proxyCfg)

	// printer service
	printerOpts := &printer.ClientOpts{
		HTTPClient:     printer.NewHTTPClient(),
		MetricsEnabled: cfg.Metrics.Enabled,
	}
	if cfg.Upstream.CircuitBreaker.Enabled {
		printerOpts.Breaker = httpx.NewCircuitBreaker(
			"printer",
			cfg.Upstream.CircuitBreaker.Timeout,
			cfg.Upstream.CircuitBreaker.MaxFailures,
		)
	}
	printerClient := printer.NewClient(logger, printerOpts)

	// turnstile
	verifier := turnstile.NewVerifier(
		httpx.NewFastHTTPClient(
			httpx.WithTimeout(proxyCfg.PrintTimeout),
			httpx.WithUserAgent(version.AppName+"/"+version.Version),
			httpx.WithMaxResponseBodySize(turnstile.MaxResponseSize),
		),
		cfg.Turnstile.VerifyURL,
	)

	// optional server-side throttle
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		redisClient, err := infraCache.NewRedisClient(cfg.Redis, logger)
		if err != nil {
			logger.WithError(err).Warn("rate limiting disabled: redis unavailable")
		} else {
			defer redisClient.Close()
			limiter = ratelimit.NewSlidingWindowLimiter(redisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window, nil)
		}
	}

	//middleware
	middlewareTransport := middleware.NewTransport(
		middleware.NewPanicRecoverMiddleware(logger),
		middleware.NewRequestIDMiddleware(),
		middleware.NewMetricsMiddleware(logger, cfg.Metrics.Enabled),
		middleware.NewCORSGlobalMiddleware(
			cfg.CORS.AllowOrigins,
			cfg.CORS.AllowMethods,
			false,
			[]string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			cfg.CORS.MaxAge,
		),
	)

	// Handler Transport
	handlerTransport := &handlers.HandlerTransportDTO{
		PrintProxyHandler: handlers.NewPrintProxyHandler(handlers.PrintProxyHandlerDeps{
			Logger:         logger,
			Config:         proxyCfg,
			TokenHeader:    cfg.Turnstile.TokenHeader,
			Verifier:       verifier,
			Printer:        printerClient,
			Limiter:        limiter,
			MetricsEnabled: cfg.Metrics.Enabled,
		}),
		StatusProxyHandler: handlers.NewStatusProxyHandler(logger, proxyCfg, printerClient),
		GetVersionHandler:  handlers.NewGetVersionHandler(),
	}
	wsHandlerTransport := &wsHandlers.HandlerTransportDTO{
		StatusStreamHandler: wsHandlers.NewStatusStreamHandler(logger, proxyCfg, cfg.StatusStream, printerClient),
	}

	srv := server.NewProxyServer(server.ProxyServerDI{
		Config: cfg,
		Logger: logger,
		Routers: []router.ServerRouter{
			router.NewProxyRouter(
				middlewareTransport,
				middleware.NewWebsocketMiddleware(logger, cfg.StatusStream.MaxConnections),
				handlerTransport,
				wsHandlerTransport,
				cfg.Docs,
			),
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		return srv.Shutdown()
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped with error")
		closeLogger(logger)
		os.Exit(1)
	}
	logger.Info("server gracefully stopped")
}

// warnMissingConfig reports unset secrets at boot. The proxies still start
// and answer 500 naming the variable, so the deploy stays observable.
func warnMissingConfig(logger *logrus.Logger, cfg config.ProxyConfig) {
	for variable, value := range map[string]string{
		config.UpstreamURLEnv:     cfg.UpstreamURL,
		config.UpstreamAPIKeyEnv:  cfg.APIKey,
		config.TurnstileSecretEnv: cfg.TurnstileSecret,
	} {
		if value == "" {
			logger.WithField("variable", variable).Warn("required proxy setting is not set")
		}
	}
}

func closeLogger(logger *logrus.Logger) {
	if w, ok := logger.Out.(*infraLogger.AsyncFileWriter); ok {
		w.Close()
	}
}
