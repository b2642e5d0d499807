package wager_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/viraatdas/wagerpals/internal/limits"
	"github.com/viraatdas/wagerpals/internal/model"
	"github.com/viraatdas/wagerpals/internal/store"
	"github.com/viraatdas/wagerpals/internal/wager"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T) (*wager.Service, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	limiter := limits.NewStakeLimiter(d(500), d(2000))
	svc := wager.NewService(ms, limiter, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)

	return svc, ms, r
}

func seedUser(t *testing.T, ms *store.MemoryStore, id, username string) *model.User {
	t.Helper()
	u := &model.User{ID: id, Username: username, NetTotal: decimal.Zero, TotalBet: decimal.Zero}
	if err := ms.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return u
}

func seedGroup(t *testing.T, ms *store.MemoryStore, id, createdBy string) *model.Group {
	t.Helper()
	g := &model.Group{
		ID:         id,
		Name:       "test group " + id,
		InviteCode: "WP-" + id,
		CreatedBy:  createdBy,
		CreatedAt:  time.Now().UnixMilli(),
		Members:    []string{createdBy},
	}
	if err := ms.CreateGroup(context.Background(), g); err != nil {
		t.Fatalf("failed to seed group: %v", err)
	}
	return g
}

func seedEvent(t *testing.T, ms *store.MemoryStore, id, groupID string, endTime int64) *model.Event {
	t.Helper()
	e := &model.Event{
		ID:        id,
		GroupID:   groupID,
		Title:     "Will it rain on Saturday",
		SideA:     "Yes",
		SideB:     "No",
		EndTime:   endTime,
		Status:    model.StatusActive,
		CreatedBy: "alice",
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := ms.CreateEvent(context.Background(), e); err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}
	return e
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func placeBet(t *testing.T, router chi.Router, eventID, userID, side string, amount decimal.Decimal) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, router, "POST", "/api/v1/events/"+eventID+"/bets", wager.PlaceBetRequest{
		UserID: userID,
		Side:   side,
		Amount: amount,
	})
}

func mustGetUser(t *testing.T, ms *store.MemoryStore, id string) *model.User {
	t.Helper()
	u, err := ms.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to get user %s: %v", id, err)
	}
	return u
}

func farFuture() int64 {
	return time.Now().Add(24 * time.Hour).UnixMilli()
}

// seedRainEvent sets up the canonical three-bettor event: Alice 30 on Yes,
// Bob 10 on Yes, Carol 40 on No.
func seedRainEvent(t *testing.T, ms *store.MemoryStore, router chi.Router) {
	t.Helper()
	seedUser(t, ms, "alice", "Alice")
	seedUser(t, ms, "bob", "Bob")
	seedUser(t, ms, "carol", "Carol")
	seedGroup(t, ms, "g1", "alice")
	seedEvent(t, ms, "ev1", "g1", farFuture())

	for _, b := range []struct {
		user   string
		side   string
		amount float64
	}{
		{"alice", "Yes", 30},
		{"bob", "Yes", 10},
		{"carol", "No", 40},
	} {
		if w := placeBet(t, router, "ev1", b.user, b.side, d(b.amount)); w.Code != http.StatusCreated {
			t.Fatalf("failed to place seed bet for %s: %d %s", b.user, w.Code, w.Body.String())
		}
	}
}

// --- Bet placement tests ---

func TestPlaceBet_Success(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedUser(t, ms, "alice", "Alice")
	seedGroup(t, ms, "g1", "alice")
	seedEvent(t, ms, "ev1", "g1", farFuture())

	w := placeBet(t, router, "ev1", "alice", "Yes", d(25))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var bet model.Bet
	json.Unmarshal(w.Body.Bytes(), &bet)

	if bet.ID == "" {
		t.Error("expected non-empty bet id")
	}
	if bet.Username != "Alice" {
		t.Errorf("username should come from the stored user, got %q", bet.Username)
	}
	if bet.IsLate {
		t.Error("bet before end_time should not be late")
	}

	alice := mustGetUser(t, ms, "alice")
	if !alice.TotalBet.Equal(d(25)) {
		t.Errorf("total_bet should be 25, got %s", alice.TotalBet)
	}
}

func TestPlaceBet_LateFlag(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedUser(t, ms, "alice", "Alice")
	seedGroup(t, ms, "g1", "alice")
	seedEvent(t, ms, "ev1", "g1", time.Now().Add(-time.Hour).UnixMilli())

	w := placeBet(t, router, "ev1", "alice", "Yes", d(25))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var bet model.Bet
	json.Unmarshal(w.Body.Bytes(), &bet)
	if !bet.IsLate {
		t.Error("bet after end_time should be flagged late")
	}

	// Late bets still count toward lifetime total.
	alice := mustGetUser(t, ms, "alice")
	if !alice.TotalBet.Equal(d(25)) {
		t.Errorf("total_bet should be 25, got %s", alice.TotalBet)
	}
}

func TestPlaceBet_Validation(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedUser(t, ms, "alice", "Alice")
	seedGroup(t, ms, "g1", "alice")
	seedEvent(t, ms, "ev1", "g1", farFuture())

	cases := []struct {
		name   string
		req    wager.PlaceBetRequest
		status int
	}{
		{"zero amount", wager.PlaceBetRequest{UserID: "alice", Side: "Yes", Amount: decimal.Zero}, http.StatusBadRequest},
		{"negative amount", wager.PlaceBetRequest{UserID: "alice", Side: "Yes", Amount: d(-5)}, http.StatusBadRequest},
		{"sub-cent amount", wager.PlaceBetRequest{UserID: "alice", Side: "Yes", Amount: d(10.005)}, http.StatusBadRequest},
		{"unknown side", wager.PlaceBetRequest{UserID: "alice", Side: "Maybe", Amount: d(10)}, http.StatusBadRequest},
		{"missing user", wager.PlaceBetRequest{UserID: "nobody", Side: "Yes", Amount: d(10)}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/api/v1/events/ev1/bets", tc.req)
			if w.Code != tc.status {
				t.Errorf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestPlaceBet_StakeLimit(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedUser(t, ms, "alice", "Alice")
	seedGroup(t, ms, "g1", "alice")
	seedEvent(t, ms, "ev1", "g1", farFuture())

	// Per-event limit is 500 in the test env.
	if w := placeBet(t, router, "ev1", "alice", "Yes", d(400)); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w := placeBet(t, router, "ev1", "alice", "Yes", d(200))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for over-limit stake, got %d: %s", w.Code, w.Body.String())
	}

	// The rejected bet must not touch user totals.
	alice := mustGetUser(t, ms, "alice")
	if !alice.TotalBet.Equal(d(400)) {
		t.Errorf("total_bet should stay 400 after rejection, got %s", alice.TotalBet)
	}
}

func TestPlaceBet_ResolvedEvent(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedRainEvent(t, ms, router)

	w := doJSON(t, router, "POST", "/api/v1/events/ev1/resolve", wager.ResolveRequest{
		WinningSide: "Yes", ResolvedBy: "alice",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve failed: %d %s", w.Code, w.Body.String())
	}

	w = placeBet(t, router, "ev1", "carol", "No", d(5))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 betting on a resolved event, got %d", w.Code)
	}
}

func TestDeleteBet_ReversesTotalBet(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedUser(t, ms, "alice", "Alice")
	seedGroup(t, ms, "g1", "alice")
	seedEvent(t, ms, "ev1", "g1", farFuture())

	w := placeBet(t, router, "ev1", "alice", "Yes", d(25))
	var bet model.Bet
	json.Unmarshal(w.Body.Bytes(), &bet)

	w = doJSON(t, router, "DELETE", "/api/v1/bets/"+bet.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	alice := mustGetUser(t, ms, "alice")
	if !alice.TotalBet.IsZero() {
		t.Errorf("total_bet should return to zero, got %s", alice.TotalBet)
	}

	if w := doJSON(t, router, "DELETE", "/api/v1/bets/"+bet.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("deleting a deleted bet should 404, got %d", w.Code)
	}
}

// --- Resolution workflow tests ---

func TestResolve_AppliesNetResults(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedRainEvent(t, ms, router)

	w := doJSON(t, router, "POST", "/api/v1/events/ev1/resolve", wager.ResolveRequest{
		WinningSide: "Yes", ResolvedBy: "alice", Note: "it rained",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp wager.ResolveResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Event.Status != model.StatusResolved {
		t.Errorf("event should be resolved, got %q", resp.Event.Status)
	}
	if resp.Event.Resolution == nil || resp.Event.Resolution.WinningSide != "Yes" {
		t.Fatal("resolution details should be recorded")
	}
	if len(resp.NetResults) != 3 {
		t.Fatalf("expected 3 net results, got %d", len(resp.NetResults))
	}

	// Pot 80, winning total 40: Alice 60-30=+30, Bob 20-10=+10, Carol -40.
	for _, want := range []struct {
		id  string
		net float64
	}{
		{"alice", 30}, {"bob", 10}, {"carol", -40},
	} {
		u := mustGetUser(t, ms, want.id)
		if !u.NetTotal.Equal(d(want.net)) {
			t.Errorf("%s net_total: expected %v, got %s", want.id, want.net, u.NetTotal)
		}
	}

	if s := mustGetUser(t, ms, "alice").Streak; s != 1 {
		t.Errorf("winner streak should increment to 1, got %d", s)
	}
	if s := mustGetUser(t, ms, "carol").Streak; s != 0 {
		t.Errorf("loser streak should reset to 0, got %d", s)
	}
}

func TestResolve_DoubleResolveConflict(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedRainEvent(t, ms, router)

	w := doJSON(t, router, "POST", "/api/v1/events/ev1/resolve", wager.ResolveRequest{
		WinningSide: "Yes", ResolvedBy: "alice",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("first resolve failed: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/api/v1/events/ev1/resolve", wager.ResolveRequest{
		WinningSide: "No", ResolvedBy: "bob",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double resolve, got %d: %s", w.Code, w.Body.String())
	}

	// Aggregates must have been applied exactly once.
	alice := mustGetUser(t, ms, "alice")
	if !alice.NetTotal.Equal(d(30)) {
		t.Errorf("net_total should stay 30 after rejected resolve, got %s", alice.NetTotal)
	}
}

func TestResolve_UnknownSide(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedRainEvent(t, ms, router)

	w := doJSON(t, router, "POST", "/api/v1/events/ev1/resolve", wager.ResolveRequest{
		WinningSide: "Maybe", ResolvedBy: "alice",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown side, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUnresolve_RestoresAggregates(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedRainEvent(t, ms, router)

	doJSON(t, router, "POST", "/api/v1/events/ev1/resolve", wager.ResolveRequest{
		WinningSide: "Yes", ResolvedBy: "alice",
	})
	w := doJSON(t, router, "POST", "/api/v1/events/ev1/unresolve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var ev model.Event
	json.Unmarshal(w.Body.Bytes(), &ev)
	if ev.Status != model.StatusActive {
		t.Errorf("event should be active again, got %q", ev.Status)
	}
	if ev.Resolution != nil {
		t.Error("resolution details should be cleared")
	}

	for _, id := range []string{"alice", "bob", "carol"} {
		u := mustGetUser(t, ms, id)
		if !u.NetTotal.IsZero() {
			t.Errorf("%s net_total should return to zero, got %s", id, u.NetTotal)
		}
	}
	if s := mustGetUser(t, ms, "alice").Streak; s != 0 {
		t.Errorf("winner streak should step back to 0, got %d", s)
	}

	// The event can be resolved again, with a different outcome.
	w = doJSON(t, router, "POST", "/api/v1/events/ev1/resolve", wager.ResolveRequest{
		WinningSide: "No", ResolvedBy: "bob",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("re-resolve failed: %d %s", w.Code, w.Body.String())
	}
	carol := mustGetUser(t, ms, "carol")
	if !carol.NetTotal.Equal(d(40)) {
		t.Errorf("carol should be +40 after No wins, got %s", carol.NetTotal)
	}
}

func TestUnresolve_ActiveEventConflict(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedRainEvent(t, ms, router)

	w := doJSON(t, router, "POST", "/api/v1/events/ev1/unresolve", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 unresolving an active event, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Settlement endpoint tests ---

func TestSettlement_Payments(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedRainEvent(t, ms, router)

	doJSON(t, router, "POST", "/api/v1/events/ev1/resolve", wager.ResolveRequest{
		WinningSide: "Yes", ResolvedBy: "alice",
	})

	w := doJSON(t, router, "GET", "/api/v1/events/ev1/settlement", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp wager.SettlementResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.WinningSide != "Yes" {
		t.Errorf("expected winning side Yes, got %q", resp.WinningSide)
	}
	if len(resp.Payments) != 2 {
		t.Fatalf("expected 2 payments, got %d: %+v", len(resp.Payments), resp.Payments)
	}
	// Payments carry usernames, largest debt pairs first: Carol pays
	// Alice 30, then Bob 10.
	if resp.Payments[0].From != "Carol" || resp.Payments[0].To != "Alice" || !resp.Payments[0].Amount.Equal(d(30)) {
		t.Errorf("unexpected first payment: %+v", resp.Payments[0])
	}
	if resp.Payments[1].From != "Carol" || resp.Payments[1].To != "Bob" || !resp.Payments[1].Amount.Equal(d(10)) {
		t.Errorf("unexpected second payment: %+v", resp.Payments[1])
	}
}

func TestSettlement_ActiveEventConflict(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedRainEvent(t, ms, router)

	w := doJSON(t, router, "GET", "/api/v1/events/ev1/settlement", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for unresolved event, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Event lifecycle tests ---

func TestCreateEvent(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedUser(t, ms, "alice", "Alice")
	seedGroup(t, ms, "g1", "alice")

	w := doJSON(t, router, "POST", "/api/v1/events", wager.CreateEventRequest{
		GroupID:   "g1",
		Title:     "Will the launch slip",
		SideA:     "Yes",
		SideB:     "No",
		EndTime:   farFuture(),
		CreatedBy: "alice",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var ev model.Event
	json.Unmarshal(w.Body.Bytes(), &ev)
	if ev.Status != model.StatusActive {
		t.Errorf("new event should be active, got %q", ev.Status)
	}
	if ev.Resolution != nil {
		t.Error("new event should have no resolution")
	}
}

func TestCreateEvent_Invalid(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedUser(t, ms, "alice", "Alice")
	seedGroup(t, ms, "g1", "alice")

	w := doJSON(t, router, "POST", "/api/v1/events", wager.CreateEventRequest{
		GroupID: "g1", Title: "x", SideA: "Yes", SideB: "Yes", EndTime: farFuture(), CreatedBy: "alice",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("identical sides should 400, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/v1/events", wager.CreateEventRequest{
		GroupID: "missing", Title: "x", SideA: "Yes", SideB: "No", EndTime: farFuture(), CreatedBy: "alice",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown group should 404, got %d", w.Code)
	}
}

func TestDeleteEvent_CascadesBets(t *testing.T) {
	_, ms, router := newTestEnv(t)
	seedRainEvent(t, ms, router)

	w := doJSON(t, router, "DELETE", "/api/v1/events/ev1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	bets, err := ms.GetBetsByEvent(context.Background(), "ev1")
	if err != nil {
		t.Fatalf("failed to list bets: %v", err)
	}
	if len(bets) != 0 {
		t.Errorf("bets should be removed with the event, got %d", len(bets))
	}
}
