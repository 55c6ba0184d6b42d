package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/agencyhub/libs/config"
	"github.com/md-rashed-zaman/agencyhub/libs/grpcx"
	"github.com/md-rashed-zaman/agencyhub/libs/httpx"
	otelx "github.com/md-rashed-zaman/agencyhub/libs/otel"
	"github.com/md-rashed-zaman/agencyhub/libs/runtime"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv(".env")

	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	metrics.Register()

	be, err := openBackend(ctx, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		panic(err)
	}
	defer be.Close()

	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 15*time.Second)
	if err != nil {
		panic(err)
	}
	// Inline side effects must answer well inside the request budget; the
	// runner keeps going in the background past this wait.
	effectsWait, err := config.Duration("SIDE_EFFECTS_WAIT", requestTimeout/3)
	if err != nil {
		panic(err)
	}

	effects := startSideEffects(ctx, logger, be)
	svc := booking.NewService(be.store, logger,
		booking.WithSideEffects(effects),
		booking.WithSideEffectsWait(effectsWait),
		booking.WithBaseURL(config.String("PUBLIC_BASE_URL", "http://localhost:3000")),
	)

	mux := runtime.NewBaseMuxWithReady(be.checks...)
	mux.Handle("/metrics", promhttp.Handler())

	rateLimit, closeLimiter := newRateLimit(logger)
	defer closeLimiter()
	handlers.NewPublicBookingHandler(svc, logger).Register(mux, rateLimit)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(requestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if grpcPort := config.String("GRPC_PORT", ""); grpcPort != "" {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
		} else {
			hs := grpcx.NewHealthServer(logger, be.checks...)
			go func() {
				logger.Info("grpc health server starting", "addr", lis.Addr().String())
				if err := hs.Serve(ctx, lis, 10*time.Second); err != nil {
					logger.Error("grpc server error", "err", err)
				}
			}()
		}
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
