package wager

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/viraatdas/wagerpals/internal/group"
	"github.com/viraatdas/wagerpals/internal/model"
	"github.com/viraatdas/wagerpals/internal/notify"
	"github.com/viraatdas/wagerpals/internal/store"
)

// CreateUserRequest is the JSON body for user creation.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
}

// CreateGroupRequest is the JSON body for group creation.
type CreateGroupRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=128"`
	CreatedBy string `json:"created_by" validate:"required"`
}

// JoinGroupRequest is the JSON body for POST /groups/join.
type JoinGroupRequest struct {
	InviteCode string `json:"invite_code" validate:"required"`
	UserID     string `json:"user_id" validate:"required"`
}

// AddCommentRequest is the JSON body for event comments.
type AddCommentRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Text   string `json:"text" validate:"required,min=1,max=2000"`
}

// SubscribePushRequest carries a browser push subscription.
type SubscribePushRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Endpoint string `json:"endpoint" validate:"required,url"`
	P256dh   string `json:"p256dh" validate:"required"`
	Auth     string `json:"auth" validate:"required"`
}

// UnsubscribePushRequest identifies the subscription to drop.
type UnsubscribePushRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// --- User handlers ---

// CreateUser handles POST /api/v1/users
func (s *Service) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user := &model.User{
		ID:       uuid.New().String(),
		Username: req.Username,
		NetTotal: decimal.Zero,
		TotalBet: decimal.Zero,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("user created", "id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, user)
}

// GetUser handles GET /api/v1/users/{userID}
func (s *Service) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ListUsers handles GET /api/v1/users
// Users are ordered by net_total descending, the leaderboard order.
func (s *Service) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].NetTotal.GreaterThan(users[j].NetTotal)
	})
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// --- Group handlers ---

// CreateGroup handles POST /api/v1/groups
func (s *Service) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetUser(ctx, req.CreatedBy); err != nil {
		writeError(w, "user not found: "+req.CreatedBy, http.StatusNotFound)
		return
	}

	g := &model.Group{
		ID:         uuid.New().String(),
		Name:       req.Name,
		InviteCode: group.NewInviteCode(),
		CreatedBy:  req.CreatedBy,
		CreatedAt:  nowMillis(),
		Members:    []string{req.CreatedBy},
	}
	if err := s.store.CreateGroup(ctx, g); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("group created", "id", g.ID, "name", g.Name, "invite_code", g.InviteCode)
	writeJSON(w, http.StatusCreated, g)
}

// JoinGroup handles POST /api/v1/groups/join
func (s *Service) JoinGroup(w http.ResponseWriter, r *http.Request) {
	var req JoinGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	code, err := group.ParseInviteCode(req.InviteCode)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
		writeError(w, "user not found: "+req.UserID, http.StatusNotFound)
		return
	}

	g, err := s.store.GetGroupByInviteCode(ctx, code)
	if err != nil {
		writeError(w, "no group with that invite code", http.StatusNotFound)
		return
	}
	if err := s.store.AddGroupMember(ctx, g.ID, req.UserID); err != nil {
		writeError(w, "failed to join group", http.StatusInternalServerError)
		return
	}

	g, err = s.store.GetGroup(ctx, g.ID)
	if err != nil {
		writeError(w, "failed to load group", http.StatusInternalServerError)
		return
	}

	slog.Info("group joined", "group", g.ID, "user", req.UserID)
	writeJSON(w, http.StatusOK, g)
}

// ListGroups handles GET /api/v1/groups?user_id=...
func (s *Service) ListGroups(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	groups, err := s.store.ListGroupsByMember(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list groups", http.StatusInternalServerError)
		return
	}
	if groups == nil {
		groups = []model.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// --- Comment handlers ---

// AddComment handles POST /api/v1/events/{eventID}/comments
func (s *Service) AddComment(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req AddCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		writeError(w, "event not found", http.StatusNotFound)
		return
	}
	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		writeError(w, "user not found: "+req.UserID, http.StatusNotFound)
		return
	}

	comment := &model.Comment{
		ID:        uuid.New().String(),
		EventID:   eventID,
		UserID:    user.ID,
		Username:  user.Username,
		Text:      req.Text,
		Timestamp: nowMillis(),
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		writeError(w, "failed to save comment", http.StatusInternalServerError)
		return
	}

	s.dispatcher.Notify(notify.Message{
		Type:     "comment_added",
		EventID:  eventID,
		Username: user.Username,
		Body:     req.Text,
	})

	writeJSON(w, http.StatusCreated, comment)
}

// ListComments handles GET /api/v1/events/{eventID}/comments
func (s *Service) ListComments(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	comments, err := s.store.GetCommentsByEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, "failed to list comments", http.StatusInternalServerError)
		return
	}
	if comments == nil {
		comments = []model.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

// --- Activity feed ---

// ListActivity handles GET /api/v1/activity?limit=N
func (s *Service) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.store.ListActivity(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to list activity", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.Activity{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Push subscription handlers ---

// SubscribePush handles POST /api/v1/push/subscribe
func (s *Service) SubscribePush(w http.ResponseWriter, r *http.Request) {
	var req SubscribePushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
		writeError(w, "user not found: "+req.UserID, http.StatusNotFound)
		return
	}

	sub := &model.PushSubscription{
		UserID:   req.UserID,
		Endpoint: req.Endpoint,
		P256dh:   req.P256dh,
		Auth:     req.Auth,
	}
	if err := s.store.SavePushSubscription(ctx, sub); err != nil {
		writeError(w, "failed to save subscription", http.StatusInternalServerError)
		return
	}

	slog.Info("push subscription saved", "user", req.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// UnsubscribePush handles DELETE /api/v1/push/subscribe
func (s *Service) UnsubscribePush(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribePushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.DeletePushSubscription(r.Context(), req.Endpoint); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, "failed to delete subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
