package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/danti/wastewatch/internal/api"
	"github.com/danti/wastewatch/internal/live"
	"github.com/danti/wastewatch/internal/model"
	"github.com/danti/wastewatch/internal/session"
)

// tokenDuration is how long an issued stub token stays valid.
const tokenDuration = 72 * time.Hour

// respond writes v as JSON with the given status code.
func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError sends the {"error": msg} shape the client normalizes.
func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

// listBody wraps list payloads under "data", matching what the client
// expects from the real backend.
func listBody(v any) map[string]any {
	return map[string]any{"data": v}
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "role"
)

// issueToken signs a token with the same claim names the real backend
// uses (_id, role, exp) so the client's unverified decode works
// unchanged against the stub.
func (s *server) issueToken(u model.User) (string, error) {
	claims := session.Claims{
		UserID: u.ID,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// authenticate verifies the token from the x-access-token header —
// unlike the client, the stub plays the server role and checks the
// signature — and stores the claims in the request context.
func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get(api.TokenHeader), "Bearer ")
		if raw == "" {
			respondError(w, http.StatusUnauthorized, "missing token")
			return
		}
		claims := &session.Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(s.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole only lets the given role through. Must run after
// authenticate.
func requireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got, _ := r.Context().Value(ctxRole).(model.Role); got != role {
				respondError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxUserID).(string)
	return id
}

func role(r *http.Request) model.Role {
	ro, _ := r.Context().Value(ctxRole).(model.Role)
	return ro
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	user, ok := s.store.userByEmail(req.Email)
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.issueToken(user.User)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	respond(w, http.StatusOK, model.LoginResponse{Token: token, User: user.User})
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" || req.Username == "" {
		respondError(w, http.StatusBadRequest, "email, username, and password are required")
		return
	}
	if !req.Role.Valid() {
		respondError(w, http.StatusBadRequest, "role must be ADMIN or CONTRIBUTOR")
		return
	}
	if _, exists := s.store.userByEmail(req.Email); exists {
		respondError(w, http.StatusConflict, "email already registered")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	user := s.store.addUser(model.User{
		Email:      req.Email,
		Username:   req.Username,
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		Role:       req.Role,
		Status:     model.UserPending,
	}, string(hash))
	respond(w, http.StatusCreated, user)
}

func (s *server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, listBody(s.store.listUsers()))
}

func (s *server) handleUpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateUserStatusRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !s.store.setUserStatus(req.ID, req.Status) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respond(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.store.deleteUser(id) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respond(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var rec model.FoodWasteRecord
	if err := decode(r, &rec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateRecord(rec); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	// The owner is whoever holds the token, regardless of the body.
	owner, ok := s.store.userByID(userID(r))
	if !ok {
		respondError(w, http.StatusUnauthorized, "unknown user")
		return
	}
	rec.User = owner.User
	now := time.Now().UTC().Format(time.RFC3339)
	rec.CreatedAt, rec.UpdatedAt = now, now
	created := s.store.addRecord(rec)

	// New submission: notify every administrator on their own topic,
	// and broadcast the record to the statistics views.
	for _, adminID := range s.store.adminIDs() {
		n := s.store.addNotification(adminID, model.Notification{
			Title:         "New record",
			Description:   fmt.Sprintf("%s submitted a food-waste record", owner.Username),
			CreatedAt:     time.Now().UTC(),
			RouteRedirect: "/admin/data-entry",
		})
		s.hub.emit(live.NotificationTopic(adminID), n)
	}
	s.hub.emit(live.TopicUpdateData, created)

	respond(w, http.StatusCreated, created)
}

// validateRecord enforces the form-boundary constraints on the fields
// the aggregates depend on.
func validateRecord(rec model.FoodWasteRecord) error {
	if rec.Quantity < 0.1 {
		return errors.New("quantity must be at least 0.1 kg")
	}
	if rec.Cost < 1 {
		return errors.New("cost must be at least 1")
	}
	if rec.DateOfWaste == "" {
		return errors.New("dateOfWaste is required")
	}
	if len(rec.FoodCategory) == 0 {
		return errors.New("at least one food category is required")
	}
	if len(rec.DishesWasted) == 0 {
		return errors.New("at least one dish is required")
	}
	if len(rec.ReasonForWaste) == 0 {
		return errors.New("at least one reason is required")
	}
	return nil
}

func (s *server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	owner := ""
	if role(r) != model.RoleAdmin {
		owner = userID(r)
	}
	respond(w, http.StatusOK, listBody(s.store.listRecords(owner)))
}

func (s *server) handleUpdateRecordStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req model.UpdateRecordStatusRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	rec, found, ok := s.store.setRecordStatus(id, req.Status)
	if !found {
		respondError(w, http.StatusNotFound, "record not found")
		return
	}
	if !ok {
		respondError(w, http.StatusConflict,
			fmt.Sprintf("cannot move record from %s to %s", rec.Status, req.Status))
		return
	}

	// Status change: tell the owner, and rebroadcast for the charts.
	n := s.store.addNotification(rec.User.ID, model.Notification{
		Title:         fmt.Sprintf("Record %s", strings.ToLower(string(req.Status))),
		Description:   fmt.Sprintf("Your record from %s is now %s", rec.DateOfWaste, req.Status),
		CreatedAt:     time.Now().UTC(),
		RouteRedirect: "/contributor/data-entry",
	})
	s.hub.emit(live.NotificationTopic(rec.User.ID), n)
	s.hub.emit(live.TopicUpdateData, rec)

	respond(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.store.deleteRecord(id, userID(r)) {
		respondError(w, http.StatusNotFound, "record not found")
		return
	}
	respond(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.store.statistics(""))
}

func (s *server) handleContributorStatistics(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.store.statistics(mux.Vars(r)["userId"]))
}

func (s *server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.store.getSettings(userID(r)))
}

func (s *server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var st model.Settings
	if err := decode(r, &st); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.store.setSettings(userID(r), st)
	respond(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, listBody(s.store.listNotifications(userID(r))))
}

func (s *server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if !s.store.markNotificationRead(userID(r), id) {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	respond(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *server) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	s.store.markAllNotificationsRead(userID(r))
	respond(w, http.StatusOK, map[string]bool{"success": true})
}
