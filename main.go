package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/userhub/internal/config"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type App struct {
	Store    Store
	Tokens   *TokenIssuer
	Log      *logrus.Logger
	Validate *validator.Validate
}

func NewApp(store Store, tokens *TokenIssuer, log *logrus.Logger) *App {
	return &App{
		Store:    store,
		Tokens:   tokens,
		Log:      log,
		Validate: validator.New(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("write json")
	}
}

// Router assembles the HTTP surface. protectUsers mounts bearer-token
// enforcement on the /users routes.
func (a *App) Router(protectUsers bool) *mux.Router {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)

	// Health check endpoints
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if p, ok := a.Store.(interface{ ping() bool }); ok && !p.ping() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
	}).Methods("GET")

	// User CRUD. The routes ship open by default; the bearer guard is opt-in.
	guard := func(h http.HandlerFunc) http.Handler {
		if protectUsers {
			return a.BearerAuth(h)
		}
		return h
	}
	r.Handle("/users", guard(a.HandleListUsers)).Methods("GET")
	r.Handle("/users", guard(a.HandleCreateUser)).Methods("POST")
	r.Handle("/users/{id}", guard(a.HandleGetUser)).Methods("GET")
	r.Handle("/users/{id}", guard(a.HandleReplaceUser)).Methods("PUT")
	r.Handle("/users/{id}", guard(a.HandlePatchUser)).Methods("PATCH")
	r.Handle("/users/{id}", guard(a.HandleDeleteUser)).Methods("DELETE")

	// Authentication
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", a.HandleLogin).Methods("POST")
	auth.HandleFunc("/signup", a.HandleSignup).Methods("POST")
	auth.HandleFunc("/refresh", a.HandleRefresh).Methods("POST")

	return r
}

func openStore(c *cfg.Config, log *logrus.Logger) (Store, error) {
	switch c.StoreAdapter {
	case "mongo":
		log.WithField("db", c.MongoDB).Info("connecting to mongodb")
		return NewMongoStore(c.MongoURI, c.MongoDB)
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, err
		}
		log.Info("applying database migrations")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			return nil, err
		}
		return NewPostgresStore(dsn)
	case "sqlite":
		return NewSQLiteStore(c.SQLiteFile)
	default: // "memory"; config already rejected anything else
		log.Warn("using in-memory store (not recommended for production)")
		return NewMemoryStore(), nil
	}
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	c, err := cfg.New()
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}

	store, err := openStore(c, log)
	if err != nil {
		log.WithError(err).Fatalf("%s store init", c.StoreAdapter)
	}

	tokens := NewTokenIssuer(c.AccessSecret, c.RefreshSecret, c.AccessTokenTTL, c.RefreshTokenTTL)
	app := NewApp(store, tokens, log)

	srv := &http.Server{
		Handler:      app.Router(c.ProtectUserRoutes),
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", c.Port).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.Store.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("shutdown failed")
	}
	log.Info("server exited properly")
}
