// Command authservice runs the OpenID Connect relying-party ext_authz
// service: an Envoy external-authorization gRPC server backed by the
// decision core in internal/oidc.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/prismon/authservice/internal/config"
	"github.com/prismon/authservice/internal/extauthz"
	"github.com/prismon/authservice/internal/httpclient"
	"github.com/prismon/authservice/internal/logging"
	"github.com/prismon/authservice/internal/metrics"
	"github.com/prismon/authservice/internal/oidc"
	"github.com/prismon/authservice/internal/sessionstore"
	"github.com/prismon/authservice/internal/verifier"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.New()
	if err := cfg.ParseArgs(os.Args[0], os.Args[1:]); err != nil {
		return fmt.Errorf("parsing configuration: %w", err)
	}

	if err := logging.Init(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON}); err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}

	store, closeStore, err := buildSessionStore(cfg.SessionStore)
	if err != nil {
		return fmt.Errorf("building session store: %w", err)
	}
	defer closeStore()

	encryptor, err := buildEncryptor(cfg)
	if err != nil {
		return fmt.Errorf("building cookie encryptor: %w", err)
	}

	router, err := buildRouter(cfg, store, encryptor)
	if err != nil {
		return fmt.Errorf("building virtual host router: %w", err)
	}

	server := extauthz.NewServer(router, log.StandardLogger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grpcServer := grpc.NewServer()
	authv3.RegisterAuthorizationServer(grpcServer, server)

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddress, err)
	}

	errs := make(chan error, 1)
	go func() {
		log.WithField("address", cfg.ListenAddress).Info("ext_authz gRPC server listening")
		errs <- grpcServer.Serve(listener)
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		metricsServer = &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
		go func() {
			log.WithField("address", cfg.MetricsAddress).Info("metrics HTTP server listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errs <- err
			}
		}()
	}

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	grpcServer.GracefulStop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}

// buildSessionStore selects the SessionStore backend named by cfg.Kind. The
// returned close func stops any background goroutines the backend started;
// it is a no-op for backends with none.
func buildSessionStore(cfg config.SessionStoreConfig) (oidc.SessionStore, func(), error) {
	maxTTL := time.Duration(cfg.MaxTTL) * time.Second

	switch cfg.Kind {
	case "redis":
		if len(cfg.Addrs) == 0 {
			return nil, nil, fmt.Errorf("session_store.kind=redis requires at least one address")
		}
		store := sessionstore.NewRedisStore(sessionstore.RedisOptions{
			Addr:     cfg.Addrs[0],
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
			MaxTTL:   maxTTL,
		})
		return store, func() {}, nil
	case "valkey":
		store, err := sessionstore.NewValkeyStore(sessionstore.ValkeyOptions{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
			MaxTTL:   maxTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return oidc.NewMemoryStore(), func() {}, nil
	}
}

// buildEncryptor builds the shared AESGCMEncryptor every virtual host's
// filter uses to seal its state cookie. The session-id cookie carries the
// plain session id and is not encrypted.
func buildEncryptor(cfg *config.Config) (*oidc.AESGCMEncryptor, error) {
	var source oidc.SecretSource
	if cfg.SecretsFile != "" {
		source = oidc.NewFileSecretSource(cfg.SecretsFile)
	} else {
		source = oidc.NewStaticSecretSource(cfg.Secrets...)
	}
	return oidc.NewAESGCMEncryptor(source)
}

// buildRouter constructs one oidc.Filter per configured virtual host and
// returns a Router dispatching Check calls to the matching Filter by Host
// header.
func buildRouter(cfg *config.Config, store oidc.SessionStore, encryptor oidc.Encryptor) (extauthz.Router, error) {
	filters := make(map[string]*oidc.Filter, len(cfg.VirtualHosts))

	for _, vh := range cfg.VirtualHosts {
		vh := vh // captured by the OnDecision closure below
		oidcCfg := vh.ToOIDCConfig()

		v, err := buildVerifier(cfg.Verifier, oidcCfg)
		if err != nil {
			return nil, fmt.Errorf("virtual host %q: %w", vh.Host, err)
		}

		parser := &oidc.DefaultTokenResponseParser{Verifier: v, Now: time.Now}
		filter := oidc.New(oidcCfg, store, encryptor, oidc.RandomSessionIdGenerator{}, parser, httpclient.New(vh.Host))
		filter.OnDecision = func(guard string, code oidc.Code) {
			log.WithFields(log.Fields{"host": vh.Host, "guard": guard, "outcome": code.String()}).Debug("filter decision")
		}
		filters[vh.Host] = filter
	}

	return hostRouter(filters), nil
}

// buildVerifier selects the id_token verification backend named by
// cfg.Kind.
func buildVerifier(cfg config.VerifierConfig, oidcCfg oidc.OIDCConfig) (oidc.Verifier, error) {
	switch cfg.Kind {
	case "keyfunc":
		return verifier.NewKeyfuncVerifier(oidcCfg.JWKSURI)
	default:
		return verifier.New(oidcCfg.ClientID, verifier.Config{
			JWKSURI:         oidcCfg.JWKSURI,
			Issuer:          cfg.Issuer,
			SkipIssuerCheck: cfg.SkipIssuerCheck,
		}), nil
	}
}

// hostRouter routes by exact Host header match against a fixed set of
// filters built at startup.
type hostRouter map[string]*oidc.Filter

func (r hostRouter) FilterFor(host string) (*oidc.Filter, bool) {
	f, ok := r[host]
	return f, ok
}
