package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/idphub/identity-gateway/audit"
	"github.com/idphub/identity-gateway/authflow"
	"github.com/idphub/identity-gateway/identity"
	"github.com/idphub/identity-gateway/internal/config"
	"github.com/idphub/identity-gateway/internal/storage"
	"github.com/idphub/identity-gateway/keyset"
	"github.com/idphub/identity-gateway/server"
	"github.com/idphub/identity-gateway/session"
	"github.com/idphub/identity-gateway/users"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Could not load .env file")
	}

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	configureLogging(c.GetEnv())
	displayAppname(c.GetAppName())

	ctx := context.Background()

	db, err := storage.Open(ctx, c.GetDatabasePath())
	if err != nil {
		return fmt.Errorf("storage.Open: %w", err)
	}
	defer db.Close()

	pipeline := audit.NewPipeline(audit.NewBunStore(db), audit.PipelineConfig{
		Workers:       c.GetAuditWorkers(),
		QueueCapacity: c.GetAuditQueueCapacity(),
		Policy:        audit.OverloadPolicy(c.GetAuditOverloadPolicy()),
	})
	defer pipeline.Close()

	interceptor := audit.NewInterceptor(pipeline, c.GetServiceName())

	resolver := keyset.NewResolver(c.GetJWKSEndpoint())
	verifier := identity.NewVerifier(resolver, c.GetAuthority(), c.GetClientID(), c.GetTenantID())

	userRepo := users.NewBunRepo(db)
	sessions := session.NewService(
		session.NewHMACSigner(c.GetSessionSecret()),
		userRepo,
		session.WithTokenExpiry(c.GetAccessTokenTTL(), c.GetRefreshTokenTTL()),
	)

	exchanger, err := buildExchanger(ctx, c)
	if err != nil {
		return err
	}

	orchestrator, err := authflow.NewOrchestrator(exchanger, verifier, userRepo, sessions, interceptor)
	if err != nil {
		return fmt.Errorf("authflow.NewOrchestrator: %w", err)
	}

	handler := server.New(c.GetEnv(), orchestrator, sessions, audit.NewBunStore(db), interceptor)
	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}

	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// buildExchanger returns nil when no client registration is configured: the
// gateway then only accepts raw identity tokens at login.
func buildExchanger(ctx context.Context, c config.Config) (*authflow.Exchanger, error) {
	if c.GetClientSecret() == "" {
		return nil, nil
	}
	exchanger, err := authflow.NewExchanger(ctx, authflow.ExchangeConfig{
		Authority:    c.GetAuthority(),
		TokenURL:     c.GetTokenEndpoint(),
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
		RedirectURL:  c.GetRedirectURL(),
	})
	if err != nil {
		return nil, fmt.Errorf("authflow.NewExchanger: %w", err)
	}
	return exchanger, nil
}

func configureLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("Server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
