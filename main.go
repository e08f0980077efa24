package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"dayline/api"
	"dayline/remote"
	"dayline/storage"
	"dayline/store"
	"dayline/syncer"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracer shutdown")
		}
	}()

	kv := newLocalKV(logger)
	st := store.New(kv, logger)

	rs := newRemoteStore(logger)
	ctrl := syncer.NewController(st, syncer.NewReconciler(rs, logger), logger)

	auth := newAuth()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, st, ctrl, auth, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	} else if val := os.Getenv("LISTEN_ADDR"); val != "" {
		listenAddr = val
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go ctrl.Run(ctx)

	go func() {
		if err := e.Start(listenAddr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	// Drain the persistence queue before exiting so the last accepted
	// mutation reaches disk.
	st.Close()
}

func newLocalKV(logger *log.Logger) storage.KV {
	switch backend := os.Getenv("LOCAL_KV"); backend {
	case "", "file":
		dataDir := os.Getenv("DATA_DIR")
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatalf("resolve data dir: %v", err)
			}
			dataDir = filepath.Join(home, ".dayline")
		}
		kv, err := storage.NewFileKV(dataDir)
		if err != nil {
			log.Fatalf("local storage: %v", err)
		}
		logger.WithField("dir", dataDir).Info("using file storage")
		return kv
	case "redis":
		redisConn := os.Getenv("REDIS_CONNECTION_STRING")
		if redisConn == "" {
			log.Fatal("missing redis config")
		}
		redisOpts, err := redis.ParseURL(redisConn)
		if err != nil {
			parts := strings.Split(redisConn, ",")
			redisOpts = &redis.Options{Addr: parts[0]}
			for _, p := range parts[1:] {
				kv := strings.SplitN(p, "=", 2)
				if len(kv) != 2 {
					continue
				}
				switch strings.ToLower(kv[0]) {
				case "password":
					redisOpts.Password = kv[1]
				case "ssl":
					if strings.ToLower(kv[1]) == "true" {
						redisOpts.TLSConfig = &tls.Config{}
					}
				}
			}
		}
		logger.WithField("addr", redisOpts.Addr).Info("using redis storage")
		return storage.NewRedisKV(redis.NewClient(redisOpts))
	default:
		log.Fatalf("unknown LOCAL_KV backend %q", backend)
		return nil
	}
}

func newRemoteStore(logger *log.Logger) remote.Store {
	switch backend := os.Getenv("REMOTE_BACKEND"); backend {
	case "", "none":
		logger.Info("no remote backend, sync is local-only")
		return remote.Noop{}
	case "tables":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		tableName := os.Getenv("SYNC_TABLE")
		if connStr == "" || tableName == "" {
			log.Fatal("missing storage config")
		}
		ts, err := remote.NewTablesStore(connStr, tableName)
		if err != nil {
			log.Fatalf("remote storage: %v", err)
		}
		return remote.NewRetry(ts, logger)
	case "http":
		baseURL := os.Getenv("REMOTE_BASE_URL")
		if baseURL == "" {
			log.Fatal("missing REMOTE_BASE_URL")
		}
		hs, err := remote.NewHTTPStore(baseURL)
		if err != nil {
			log.Fatalf("remote storage: %v", err)
		}
		return remote.NewRetry(hs, logger)
	default:
		log.Fatalf("unknown REMOTE_BACKEND %q", backend)
		return nil
	}
}

func newAuth() *api.Auth {
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		secret := os.Getenv("TEST_JWT_SECRET")
		if secret == "" {
			log.Fatal("missing TEST_JWT_SECRET")
		}
		return api.NewTestAuth([]byte(secret))
	}

	jwtAudience := os.Getenv("AUTH0_AUDIENCE")
	domain := os.Getenv("AUTH0_DOMAIN")
	if jwtAudience == "" || domain == "" {
		log.Fatal("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
}
