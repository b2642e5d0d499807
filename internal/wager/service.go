// Package wager provides the HTTP handlers and business logic for events,
// bets, and the resolve/unresolve workflow that settles them.
//
// All monetary values use shopspring/decimal — never float64 for money.
package wager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/viraatdas/wagerpals/internal/limits"
	"github.com/viraatdas/wagerpals/internal/metrics"
	"github.com/viraatdas/wagerpals/internal/model"
	"github.com/viraatdas/wagerpals/internal/notify"
	"github.com/viraatdas/wagerpals/internal/settle"
	"github.com/viraatdas/wagerpals/internal/store"
)

var (
	// ErrAlreadyResolved is returned when resolve is called on a resolved
	// event.
	ErrAlreadyResolved = errors.New("wager: event already resolved")

	// ErrNotResolved is returned when unresolve (or a settlement query) is
	// called on an active event.
	ErrNotResolved = errors.New("wager: event is not resolved")
)

// Service handles event and bet operations. Resolve/unresolve are
// serialized by a mutex (single-instance); the store applies each one in a
// single transaction, so for horizontal scaling replace the mutex with a
// database row lock.
type Service struct {
	store      store.Store
	limiter    *limits.StakeLimiter
	dispatcher *notify.Dispatcher
	validate   *validator.Validate
	mu         sync.Mutex
}

// NewService creates a new wager service. Pass nil for dispatcher if
// notifications are not needed.
func NewService(st store.Store, limiter *limits.StakeLimiter, dispatcher *notify.Dispatcher) *Service {
	return &Service{
		store:      st,
		limiter:    limiter,
		dispatcher: dispatcher,
		validate:   validator.New(),
	}
}

// Routes registers the API routes on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/users", s.CreateUser)
	r.Get("/users", s.ListUsers)
	r.Get("/users/{userID}", s.GetUser)

	r.Post("/groups", s.CreateGroup)
	r.Post("/groups/join", s.JoinGroup)
	r.Get("/groups", s.ListGroups)

	r.Post("/events", s.CreateEvent)
	r.Get("/events", s.ListEvents)
	r.Get("/events/{eventID}", s.GetEvent)
	r.Delete("/events/{eventID}", s.DeleteEvent)

	r.Post("/events/{eventID}/bets", s.PlaceBet)
	r.Get("/events/{eventID}/bets", s.ListBets)
	r.Delete("/bets/{betID}", s.DeleteBet)

	r.Post("/events/{eventID}/resolve", s.Resolve)
	r.Post("/events/{eventID}/unresolve", s.Unresolve)
	r.Get("/events/{eventID}/settlement", s.GetSettlement)

	r.Post("/events/{eventID}/comments", s.AddComment)
	r.Get("/events/{eventID}/comments", s.ListComments)

	r.Get("/activity", s.ListActivity)

	r.Post("/push/subscribe", s.SubscribePush)
	r.Delete("/push/subscribe", s.UnsubscribePush)
}

// --- Request/Response types ---

// CreateEventRequest is the JSON body for event creation.
type CreateEventRequest struct {
	GroupID   string `json:"group_id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	SideA     string `json:"side_a" validate:"required"`
	SideB     string `json:"side_b" validate:"required"`
	EndTime   int64  `json:"end_time" validate:"required,gt=0"`
	CreatedBy string `json:"created_by" validate:"required"`
}

// PlaceBetRequest is the JSON body for POST /events/{eventID}/bets.
// The username is denormalized from the stored user, not trusted from
// the client.
type PlaceBetRequest struct {
	UserID string          `json:"user_id" validate:"required"`
	Side   string          `json:"side" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

// ResolveRequest is the JSON body for POST /events/{eventID}/resolve.
type ResolveRequest struct {
	WinningSide string `json:"winning_side" validate:"required"`
	ResolvedBy  string `json:"resolved_by" validate:"required"`
	Note        string `json:"note"`
}

// ResolveResponse is returned from a successful resolve: the updated event
// plus the freshly computed net results for immediate display.
type ResolveResponse struct {
	Event      *model.Event      `json:"event"`
	NetResults []model.NetResult `json:"net_results"`
}

// SettlementResponse is returned from GET /events/{eventID}/settlement.
type SettlementResponse struct {
	EventID     string            `json:"event_id"`
	WinningSide string            `json:"winning_side"`
	NetResults  []model.NetResult `json:"net_results"`
	Payments    []model.Payment   `json:"payments"`
}

// --- Event handlers ---

// CreateEvent handles POST /api/v1/events
func (s *Service) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.SideA == req.SideB {
		writeError(w, "sides must be distinct", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetGroup(ctx, req.GroupID); err != nil {
		writeError(w, "group not found: "+req.GroupID, http.StatusNotFound)
		return
	}

	event := &model.Event{
		ID:        uuid.New().String(),
		GroupID:   req.GroupID,
		Title:     req.Title,
		SideA:     req.SideA,
		SideB:     req.SideB,
		EndTime:   req.EndTime,
		Status:    model.StatusActive,
		CreatedBy: req.CreatedBy,
		CreatedAt: nowMillis(),
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("event created",
		"id", event.ID,
		"group", event.GroupID,
		"title", event.Title,
		"sides", event.Sides(),
	)

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /api/v1/events?group_id=...
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("group_id")
	if groupID == "" {
		writeError(w, "group_id query parameter is required", http.StatusBadRequest)
		return
	}

	events, err := s.store.ListEventsByGroup(r.Context(), groupID)
	if err != nil {
		writeError(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /api/v1/events/{eventID}
func (s *Service) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	event, err := s.store.GetEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, "event not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /api/v1/events/{eventID}
// Deleting an event cascades to its bets.
func (s *Service) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	if err := s.store.DeleteEvent(r.Context(), eventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "event not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to delete event", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Bet handlers ---

// PlaceBet handles POST /api/v1/events/{eventID}/bets
func (s *Service) PlaceBet(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	if !req.Amount.Equal(req.Amount.Round(settle.CentScale)) {
		writeError(w, "amount must be in whole cents", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		writeError(w, "event not found", http.StatusNotFound)
		return
	}
	if event.Status != model.StatusActive {
		writeError(w, "event is already resolved", http.StatusConflict)
		return
	}
	if !event.HasSide(req.Side) {
		writeError(w, fmt.Sprintf("side must be %q or %q", event.SideA, event.SideB), http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		writeError(w, "user not found: "+req.UserID, http.StatusNotFound)
		return
	}

	// --- Stake limit check ---
	eventStake, err := s.store.GetUserEventStake(ctx, req.UserID, eventID)
	if err != nil {
		writeError(w, "failed to check stake limits", http.StatusInternalServerError)
		return
	}
	outstanding, err := s.store.GetUserOutstandingStake(ctx, req.UserID)
	if err != nil {
		writeError(w, "failed to check stake limits", http.StatusInternalServerError)
		return
	}
	if err := s.limiter.Check(req.Amount, eventStake, outstanding); err != nil {
		metrics.StakeLimitRejections.Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	now := nowMillis()
	bet := &model.Bet{
		ID:        uuid.New().String(),
		EventID:   eventID,
		UserID:    user.ID,
		Username:  user.Username,
		Side:      req.Side,
		Amount:    req.Amount,
		Note:      req.Note,
		Timestamp: now,
		IsLate:    now > event.EndTime,
	}

	if err := s.store.InsertBet(ctx, bet); err != nil {
		writeError(w, "failed to record bet", http.StatusInternalServerError)
		return
	}
	// Late bets still count toward the user's lifetime total.
	if err := s.store.AddToTotalBet(ctx, user.ID, req.Amount); err != nil {
		writeError(w, "failed to update user totals", http.StatusInternalServerError)
		return
	}

	betMsg := fmt.Sprintf("%s bet %s on %q", user.Username, req.Amount.StringFixed(2), req.Side)
	if bet.IsLate {
		betMsg += " (late)"
	}
	s.appendActivity(ctx, model.ActivityBet, event, betMsg)

	metrics.BetsPlaced.WithLabelValues(strconv.FormatBool(bet.IsLate)).Inc()
	slog.Info("bet placed",
		"bet_id", bet.ID,
		"event", eventID,
		"user", user.ID,
		"side", req.Side,
		"amount", req.Amount.String(),
		"late", bet.IsLate,
	)

	s.dispatcher.Notify(notify.Message{
		Type:       "bet_placed",
		EventID:    eventID,
		GroupID:    event.GroupID,
		EventTitle: event.Title,
		Username:   user.Username,
		Side:       req.Side,
		Amount:     req.Amount.StringFixed(2),
	})

	writeJSON(w, http.StatusCreated, bet)
}

// ListBets handles GET /api/v1/events/{eventID}/bets
func (s *Service) ListBets(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	bets, err := s.store.GetBetsByEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, "failed to list bets", http.StatusInternalServerError)
		return
	}
	if bets == nil {
		bets = []model.Bet{}
	}
	writeJSON(w, http.StatusOK, bets)
}

// DeleteBet handles DELETE /api/v1/bets/{betID}
// Removing a bet reverses the bettor's total_bet. Deletion is not blocked
// on resolved events; unresolve recomputes from whatever bets remain.
func (s *Service) DeleteBet(w http.ResponseWriter, r *http.Request) {
	betID := chi.URLParam(r, "betID")
	ctx := r.Context()

	bet, err := s.store.GetBet(ctx, betID)
	if err != nil {
		writeError(w, "bet not found", http.StatusNotFound)
		return
	}

	if err := s.store.DeleteBet(ctx, betID); err != nil {
		writeError(w, "failed to delete bet", http.StatusInternalServerError)
		return
	}
	if err := s.store.AddToTotalBet(ctx, bet.UserID, bet.Amount.Neg()); err != nil {
		writeError(w, "failed to update user totals", http.StatusInternalServerError)
		return
	}

	slog.Info("bet deleted", "bet_id", betID, "event", bet.EventID, "user", bet.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// --- Resolution workflow ---

// ResolveEvent runs the resolve transition: active -> resolved. It computes
// net results from the event's full ledger, applies them to user aggregates
// together with the event flip and the activity entry in one store
// transaction, and returns the updated event plus the results.
func (s *Service) ResolveEvent(ctx context.Context, eventID, winningSide, resolvedBy, note string) (*model.Event, []model.NetResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if event.Status != model.StatusActive {
		return nil, nil, ErrAlreadyResolved
	}
	if !event.HasSide(winningSide) {
		return nil, nil, fmt.Errorf("unknown side %q", winningSide)
	}

	bets, err := s.store.GetBetsByEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}

	netResults := settle.ComputeNetResults(bets, winningSide)

	res := &model.Resolution{
		WinningSide: winningSide,
		Note:        note,
		ResolvedAt:  nowMillis(),
		ResolvedBy:  resolvedBy,
	}
	act := &model.Activity{
		ID:         uuid.New().String(),
		Type:       model.ActivityResolve,
		EventID:    event.ID,
		EventTitle: event.Title,
		Message:    resolutionMessage(event.Title, winningSide, netResults),
		Timestamp:  nowMillis(),
	}

	if err := s.store.ApplyResolution(ctx, eventID, res, netResults, act); err != nil {
		return nil, nil, err
	}

	event.Status = model.StatusResolved
	event.Resolution = res

	metrics.Resolutions.WithLabelValues("resolve").Inc()
	slog.Info("event resolved",
		"event", eventID,
		"winning_side", winningSide,
		"resolved_by", resolvedBy,
		"participants", len(netResults),
	)

	s.dispatcher.Notify(notify.Message{
		Type:       "event_resolved",
		EventID:    event.ID,
		GroupID:    event.GroupID,
		EventTitle: event.Title,
		Side:       winningSide,
		Body:       act.Message,
	})

	return event, netResults, nil
}

// UnresolveEvent runs the inverse transition: resolved -> active. Net
// results are recomputed from the current bet set with the stored winning
// side; as long as bets were not mutated in between, this reproduces the
// exact values applied at resolve time.
func (s *Service) UnresolveEvent(ctx context.Context, eventID string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != model.StatusResolved || event.Resolution == nil {
		return nil, ErrNotResolved
	}

	bets, err := s.store.GetBetsByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	netResults := settle.ComputeNetResults(bets, event.Resolution.WinningSide)

	act := &model.Activity{
		ID:         uuid.New().String(),
		Type:       model.ActivityUnresolve,
		EventID:    event.ID,
		EventTitle: event.Title,
		Message:    fmt.Sprintf("%q was unresolved; results reverted", event.Title),
		Timestamp:  nowMillis(),
	}

	if err := s.store.RevertResolution(ctx, eventID, netResults, act); err != nil {
		return nil, err
	}

	event.Status = model.StatusActive
	event.Resolution = nil

	metrics.Resolutions.WithLabelValues("unresolve").Inc()
	slog.Info("event unresolved", "event", eventID, "participants", len(netResults))

	s.dispatcher.Notify(notify.Message{
		Type:       "event_unresolved",
		EventID:    event.ID,
		GroupID:    event.GroupID,
		EventTitle: event.Title,
	})

	return event, nil
}

// Resolve handles POST /api/v1/events/{eventID}/resolve
func (s *Service) Resolve(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	event, netResults, err := s.ResolveEvent(r.Context(), eventID, req.WinningSide, req.ResolvedBy, req.Note)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	if netResults == nil {
		netResults = []model.NetResult{}
	}

	writeJSON(w, http.StatusOK, ResolveResponse{Event: event, NetResults: netResults})
}

// Unresolve handles POST /api/v1/events/{eventID}/unresolve
func (s *Service) Unresolve(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	event, err := s.UnresolveEvent(r.Context(), eventID)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// GetSettlement handles GET /api/v1/events/{eventID}/settlement
// Returns net results and the suggested payments for a resolved event.
// Payments are computed at display time, never persisted.
func (s *Service) GetSettlement(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	ctx := r.Context()

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		writeError(w, "event not found", http.StatusNotFound)
		return
	}
	if event.Status != model.StatusResolved || event.Resolution == nil {
		writeError(w, "event is not resolved", http.StatusConflict)
		return
	}

	bets, err := s.store.GetBetsByEvent(ctx, eventID)
	if err != nil {
		writeError(w, "failed to load bets", http.StatusInternalServerError)
		return
	}

	netResults := settle.ComputeNetResults(bets, event.Resolution.WinningSide)
	payments := settle.ComputePayments(netResults)
	if netResults == nil {
		netResults = []model.NetResult{}
	}
	if payments == nil {
		payments = []model.Payment{}
	}

	writeJSON(w, http.StatusOK, SettlementResponse{
		EventID:     event.ID,
		WinningSide: event.Resolution.WinningSide,
		NetResults:  netResults,
		Payments:    payments,
	})
}

// --- Helpers ---

// resolutionMessage summarizes a resolution for the activity feed, naming
// up to the 3 biggest net winners in descending order.
func resolutionMessage(title, winningSide string, results []model.NetResult) string {
	sorted := append([]model.NetResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Net.GreaterThan(sorted[j].Net)
	})

	msg := fmt.Sprintf("%q resolved: %s wins", title, winningSide)
	var winners []string
	for _, r := range sorted {
		if !r.Net.IsPositive() || len(winners) == 3 {
			break
		}
		winners = append(winners, fmt.Sprintf("%s +%s", r.Username, r.Net.StringFixed(2)))
	}
	if len(winners) > 0 {
		msg += "; top winners: " + joinComma(winners)
	}
	return msg
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func (s *Service) appendActivity(ctx context.Context, typ string, event *model.Event, message string) {
	act := &model.Activity{
		ID:         uuid.New().String(),
		Type:       typ,
		EventID:    event.ID,
		EventTitle: event.Title,
		Message:    message,
		Timestamp:  nowMillis(),
	}
	if err := s.store.AppendActivity(ctx, act); err != nil {
		slog.Warn("failed to append activity", "event", event.ID, "err", err)
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// writeWorkflowError maps resolution workflow errors onto HTTP statuses.
func writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "event not found", http.StatusNotFound)
	case errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrNotResolved), errors.Is(err, store.ErrInvalidState):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusBadRequest)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
