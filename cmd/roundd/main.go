package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"roundledger/config"
	gatewayconfig "roundledger/gateway/config"
	"roundledger/gateway/middleware"
	"roundledger/gateway/routes"
	"roundledger/observability"
	"roundledger/observability/logging"
	telemetry "roundledger/observability/otel"
)

func main() {
	var cfgPath string
	var allowInsecureFlag bool
	var logLevel string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to node configuration")
	flag.BoolVar(&allowInsecureFlag, "allow-insecure", false, "DEV ONLY: permit plaintext listeners on loopback interfaces")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	env := strings.TrimSpace(os.Getenv("ROUNDLEDGER_ENV"))
	if env == "" {
		env = cfg.Env
	}

	slogger := logging.SetupWithOptions("roundd", env, logging.Options{Level: logLevel, File: cfg.LogFile})
	logger := log.New(os.Stdout, "roundd ", log.LstdFlags|log.Lmsgprefix)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("roundd", env))
	if err != nil {
		slogger.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	configDir := filepath.Dir(cfgPath)
	gwPath := resolvePath(configDir, cfg.GatewayConfig)
	gwCfg, err := gatewayconfig.Load(gwPath)
	if err != nil {
		logger.Fatalf("load gateway config: %v", err)
	}
	if strings.TrimSpace(cfg.ListenAddress) != "" && gwPath == "" {
		gwCfg.ListenAddress = cfg.ListenAddress
	}

	slogger.Info("starting rounds ledger", startupFields(cfg, gwCfg)...)

	n, err := openNode(cfg, slogger)
	if err != nil {
		slogger.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer n.Close()

	handler, err := buildHandler(gwCfg, n, logger)
	if err != nil {
		logger.Fatalf("configure routes: %v", err)
	}

	tlsConfig, err := buildTLSConfig(configDir, gwCfg.Security)
	if err != nil {
		logger.Fatalf("configure TLS: %v", err)
	}
	allowInsecure := gwCfg.Security.AllowInsecure || allowInsecureFlag
	if tlsConfig == nil {
		if !allowInsecure {
			logger.Fatal("TLS certificate and key are required; provide security.tlsCertFile/tlsKeyFile or start with --allow-insecure in dev")
		}
		if !strings.EqualFold(env, "dev") && !isLoopbackAddress(gwCfg.ListenAddress) {
			logger.Fatal("plaintext mode is restricted to loopback listeners or dev environment")
		}
	}

	server := &http.Server{
		Addr:         gwCfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  gwCfg.ReadTimeout,
		WriteTimeout: gwCfg.WriteTimeout,
		IdleTimeout:  gwCfg.IdleTimeout,
		TLSConfig:    tlsConfig,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reportStatus(ctx, n.engine, observability.Rounds(), 15*time.Second, slogger)

	listener, err := net.Listen("tcp", gwCfg.ListenAddress)
	if err != nil {
		logger.Fatalf("listen: %v", err)
	}
	go func() {
		scheme := "http"
		if tlsConfig != nil {
			scheme = "https"
		}
		slogger.Info("rounds ledger listening", "address", fmt.Sprintf("%s://%s", scheme, listener.Addr()), "backend", cfg.Backend)
		var serveErr error
		if tlsConfig != nil {
			serveErr = server.Serve(tls.NewListener(listener, tlsConfig))
		} else {
			serveErr = server.Serve(listener)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Fatalf("listen and serve: %v", serveErr)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func buildHandler(gwCfg gatewayconfig.Config, n *node, logger *log.Logger) (http.Handler, error) {
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   gwCfg.Observability.ServiceName,
		MetricsPrefix: gwCfg.Observability.MetricsPrefix,
		LogRequests:   gwCfg.Observability.LogRequests,
		Enabled:       gwCfg.Observability.Metrics || gwCfg.Observability.Tracing,
	}, logger)

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        gwCfg.Auth.Enabled,
		HMACSecret:     gwCfg.Auth.HMACSecret,
		Issuer:         gwCfg.Auth.Issuer,
		Audience:       gwCfg.Auth.Audience,
		ScopeClaim:     gwCfg.Auth.ScopeClaim,
		CallerClaim:    gwCfg.Auth.CallerClaim,
		OptionalPaths:  gwCfg.Auth.OptionalPaths,
		AllowAnonymous: gwCfg.Auth.AllowAnonymous,
		ClockSkew:      gwCfg.Auth.ClockSkew,
	}, logger)
	if !gwCfg.Auth.Enabled {
		logger.Printf("auth disabled: caller identity is taken from the X-Caller header")
	}

	rateLimits := make(map[string]middleware.RateLimit, len(gwCfg.RateLimits))
	for _, entry := range gwCfg.RateLimits {
		rateLimits[entry.ID] = middleware.RateLimit{
			RequestsPerMinute: entry.RequestsPerMinute,
			RatePerSecond:     entry.RatePerSecond,
			Burst:             entry.Burst,
		}
	}
	limiter := middleware.NewRateLimiter(rateLimits, logger)
	go limiter.RunJanitor(time.Minute, nil)

	return routes.New(routes.Config{
		Ledger:        n.engine,
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   gwCfg.CORS.AllowedOrigins,
			AllowCredentials: gwCfg.CORS.AllowCredentials,
		},
		AdminScope:  gwCfg.Auth.AdminScope,
		Tracing:     gwCfg.Observability.Tracing,
		ServiceName: gwCfg.Observability.ServiceName,
	})
}

// startupFields describes the node configuration for the startup log with
// secret-bearing values masked.
func startupFields(cfg *config.Config, gwCfg gatewayconfig.Config) []any {
	authMode := "header"
	if gwCfg.Auth.Enabled {
		authMode = "jwt"
	}
	return logging.MaskFields(
		"backend", cfg.Backend,
		"dataDir", cfg.DataDir,
		"address", gwCfg.ListenAddress,
		"authMode", authMode,
		"authSecret", gwCfg.Auth.HMACSecret,
		"ownerKeyFile", cfg.OwnerKeyFile,
		"tlsKeyFile", gwCfg.Security.TLSKeyFile,
	)
}

func buildTLSConfig(baseDir string, sec gatewayconfig.SecurityConfig) (*tls.Config, error) {
	if !sec.TLSEnabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(resolvePath(baseDir, sec.TLSCertFile), resolvePath(baseDir, sec.TLSKeyFile))
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if baseDir == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}

func isLoopbackAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
