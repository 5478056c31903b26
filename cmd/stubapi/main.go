// stubapi is a development stand-in for the dashboard's external
// collaborators: the REST API and the push endpoint. The product treats
// both as opaque boundaries; this binary exists so the client can be
// run, demoed, and integration-tested without the real backend.
//
// It issues real HS256 tokens with the same claim names the backend
// uses, enforces the approval-transition guard server-side, and pushes
// topic envelopes over a websocket hub. Nothing persists across
// restarts — that is deliberate for a stub.
package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"golang.org/x/crypto/bcrypt"

	"github.com/danti/wastewatch/internal/model"
)

type server struct {
	store    *memoryStore
	hub      *hub
	router   *mux.Router
	upgrader websocket.Upgrader
	secret   string
	log      *slog.Logger
}

func newServer(secret string, logger *slog.Logger) *server {
	s := &server{
		store:  newMemoryStore(),
		hub:    newHub(logger),
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			// The stub accepts any origin; it only ever runs in dev.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		secret: secret,
		log:    logger,
	}
	s.routes()
	go s.hub.run()
	return s
}

func (s *server) routes() {
	r := s.router

	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWebSocket)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.authenticate)

	admin := authed.NewRoute().Subrouter()
	admin.Use(requireRole(model.RoleAdmin))
	admin.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/user/status", s.handleUpdateUserStatus).Methods(http.MethodPut)
	admin.HandleFunc("/user/{id}", s.handleDeleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/record/{id}/status", s.handleUpdateRecordStatus).Methods(http.MethodPut)
	admin.HandleFunc("/statistics", s.handleStatistics).Methods(http.MethodGet)

	authed.HandleFunc("/record", s.handleCreateRecord).Methods(http.MethodPost)
	authed.HandleFunc("/records", s.handleListRecords).Methods(http.MethodGet)
	authed.HandleFunc("/record/{id}", s.handleDeleteRecord).Methods(http.MethodDelete)
	authed.HandleFunc("/statistics/{userId}", s.handleContributorStatistics).Methods(http.MethodGet)
	authed.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	authed.HandleFunc("/settings", s.handleUpdateSettings).Methods(http.MethodPut)
	authed.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet)
	authed.HandleFunc("/notification/{id}/read", s.handleMarkNotificationRead).Methods(http.MethodPut)
	authed.HandleFunc("/notifications/read-all", s.handleMarkAllNotificationsRead).Methods(http.MethodPut)
}

// seed loads two known accounts so the client has something to log in
// with. Passwords are hashed like the real backend would.
func (s *server) seed() error {
	for _, u := range []struct {
		user     model.User
		password string
	}{
		{
			user: model.User{
				Email:     "admin@wastewatch.local",
				Username:  "admin",
				FirstName: "Ada",
				LastName:  "Admin",
				Role:      model.RoleAdmin,
				Status:    model.UserApproved,
			},
			password: "admin123",
		},
		{
			user: model.User{
				Email:     "stall@wastewatch.local",
				Username:  "stall-one",
				FirstName: "Carla",
				LastName:  "Cruz",
				Role:      model.RoleContributor,
				Status:    model.UserApproved,
			},
			password: "stall123",
		},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		s.store.addUser(u.user, string(hash))
	}
	return nil
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Permissive CORS, browser clients included.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-access-token")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.router.ServeHTTP(w, r)
}

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	}))

	addr := getenv("ADDR", ":3000")
	secret := getenv("JWT_SECRET", "stub-secret-not-for-production")

	srv := newServer(secret, logger)
	if err := srv.seed(); err != nil {
		logger.Error("seed users", "err", err)
		os.Exit(1)
	}

	logger.Info("stub API listening", "addr", addr,
		"admin", "admin@wastewatch.local/admin123",
		"contributor", "stall@wastewatch.local/stall123")
	if err := http.ListenAndServe(addr, srv); err != nil {
		logger.Error("server", "err", err)
		os.Exit(1)
	}
}

// getenv returns the environment variable k, or fallback when unset.
func getenv(k, fallback string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return fallback
}
