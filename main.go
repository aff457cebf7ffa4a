package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"weekplan-api/api"
	"weekplan-api/storage"
)

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return d
}

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	weeksTableName := os.Getenv("WEEKS_TABLE")
	usersTableName := os.Getenv("USERS_TABLE")
	changeQueueName := os.Getenv("CHANGE_QUEUE")
	if connStr == "" || weeksTableName == "" || usersTableName == "" || changeQueueName == "" {
		log.Fatal("missing storage config")
	}
	tables, err := storage.New(connStr, weeksTableName, usersTableName, changeQueueName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

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
	rc := redis.NewClient(redisOpts)
	store := storage.NewCache(tables, rc, envDuration("CACHE_TTL", 5*time.Minute))
	deduper := api.NewRedisDeduper(rc, envDuration("DEDUPER_TTL", 24*time.Hour))

	var auth *api.Auth
	var sessions *api.Sessions
	if jwtAudience := os.Getenv("JWKS_AUDIENCE"); jwtAudience != "" {
		domain := os.Getenv("JWKS_DOMAIN")
		if domain == "" {
			log.Fatal("missing JWKS config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewJWKSAuth(jwks, jwtAudience, "https://"+domain+"/")
	} else {
		secret := os.Getenv("SESSION_SECRET")
		if secret == "" {
			log.Fatal("missing SESSION_SECRET")
		}
		issuer := os.Getenv("SESSION_ISSUER")
		auth = api.NewSessionAuth([]byte(secret), issuer)
		sessions = api.NewSessions([]byte(secret), envDuration("SESSION_TTL", 7*24*time.Hour), issuer)
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(api.GzipRequestMiddleware())

	logger := log.New()
	api.Register(e, store, auth, sessions, deduper, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
