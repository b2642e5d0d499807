package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/viraatdas/wagerpals/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*model.User
	groups   map[string]*model.Group
	events   map[string]*model.Event
	bets     []model.Bet
	comments []model.Comment
	activity []model.Activity
	subs     map[string]model.PushSubscription // keyed by endpoint
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*model.User),
		groups: make(map[string]*model.Group),
		events: make(map[string]*model.Event),
		subs:   make(map[string]model.PushSubscription),
	}
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s already exists", u.ID)
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *MemoryStore) AddToTotalBet(_ context.Context, userID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	u.TotalBet = u.TotalBet.Add(delta)
	return nil
}

// --- Groups ---

func (s *MemoryStore) CreateGroup(_ context.Context, g *model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *g
	cp.Members = append([]string(nil), g.Members...)
	s.groups[g.ID] = &cp
	return nil
}

func (s *MemoryStore) GetGroup(_ context.Context, id string) (*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	return copyGroup(g), nil
}

func (s *MemoryStore) GetGroupByInviteCode(_ context.Context, code string) (*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.groups {
		if g.InviteCode == code {
			return copyGroup(g), nil
		}
	}
	return nil, fmt.Errorf("invite code %s: %w", code, ErrNotFound)
}

func (s *MemoryStore) AddGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	for _, m := range g.Members {
		if m == userID {
			return nil // already a member
		}
	}
	g.Members = append(g.Members, userID)
	return nil
}

func (s *MemoryStore) ListGroupsByMember(_ context.Context, userID string) ([]model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var groups []model.Group
	for _, g := range s.groups {
		for _, m := range g.Members {
			if m == userID {
				groups = append(groups, *copyGroup(g))
				break
			}
		}
	}
	return groups, nil
}

func copyGroup(g *model.Group) *model.Group {
	cp := *g
	cp.Members = append([]string(nil), g.Members...)
	return &cp
}

// --- Events ---

func (s *MemoryStore) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[e.ID]; ok {
		return fmt.Errorf("event %s already exists", e.ID)
	}
	s.events[e.ID] = copyEvent(e)
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return copyEvent(e), nil
}

func (s *MemoryStore) ListEventsByGroup(_ context.Context, groupID string) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []model.Event
	for _, e := range s.events {
		if e.GroupID == groupID {
			events = append(events, *copyEvent(e))
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt > events[j].CreatedAt })
	return events, nil
}

func (s *MemoryStore) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	delete(s.events, id)

	// Cascade to bets.
	kept := s.bets[:0]
	for _, b := range s.bets {
		if b.EventID != id {
			kept = append(kept, b)
		}
	}
	s.bets = kept
	return nil
}

func copyEvent(e *model.Event) *model.Event {
	cp := *e
	if e.Resolution != nil {
		res := *e.Resolution
		cp.Resolution = &res
	}
	return &cp
}

// --- Bets ---

func (s *MemoryStore) InsertBet(_ context.Context, b *model.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bets = append(s.bets, *b)
	return nil
}

func (s *MemoryStore) GetBet(_ context.Context, id string) (*model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.bets {
		if b.ID == id {
			cp := b
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("bet %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) GetBetsByEvent(_ context.Context, eventID string) ([]model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bet
	for _, b := range s.bets {
		if b.EventID == eventID {
			result = append(result, b)
		}
	}
	return result, nil
}

func (s *MemoryStore) DeleteBet(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, b := range s.bets {
		if b.ID == id {
			s.bets = append(s.bets[:i], s.bets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("bet %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) GetUserEventStake(_ context.Context, userID, eventID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stake := decimal.Zero
	for _, b := range s.bets {
		if b.UserID == userID && b.EventID == eventID {
			stake = stake.Add(b.Amount)
		}
	}
	return stake, nil
}

func (s *MemoryStore) GetUserOutstandingStake(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stake := decimal.Zero
	for _, b := range s.bets {
		if b.UserID != userID {
			continue
		}
		if e, ok := s.events[b.EventID]; ok && e.Status == model.StatusActive {
			stake = stake.Add(b.Amount)
		}
	}
	return stake, nil
}

// --- Comments ---

func (s *MemoryStore) InsertComment(_ context.Context, c *model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.comments = append(s.comments, *c)
	return nil
}

func (s *MemoryStore) GetCommentsByEvent(_ context.Context, eventID string) ([]model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Comment
	for _, c := range s.comments {
		if c.EventID == eventID {
			result = append(result, c)
		}
	}
	return result, nil
}

// --- Activity feed ---

func (s *MemoryStore) AppendActivity(_ context.Context, a *model.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activity = append(s.activity, *a)
	return nil
}

func (s *MemoryStore) ListActivity(_ context.Context, limit int) ([]model.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first.
	result := make([]model.Activity, 0, limit)
	for i := len(s.activity) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.activity[i])
	}
	return result, nil
}

// --- Push subscriptions ---

func (s *MemoryStore) SavePushSubscription(_ context.Context, sub *model.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs[sub.Endpoint] = *sub
	return nil
}

func (s *MemoryStore) DeletePushSubscription(_ context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subs, endpoint)
	return nil
}

func (s *MemoryStore) ListPushSubscriptions(_ context.Context) ([]model.PushSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]model.PushSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	return subs, nil
}

// --- Resolution ---

// ApplyResolution mutates the event and user aggregates under a single lock,
// mirroring the transactional apply of the Postgres store.
func (s *MemoryStore) ApplyResolution(_ context.Context, eventID string, res *model.Resolution, results []model.NetResult, act *model.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if e.Status != model.StatusActive {
		return ErrInvalidState
	}

	for _, r := range results {
		u, ok := s.users[r.UserID]
		if !ok {
			return fmt.Errorf("user %s: %w", r.UserID, ErrNotFound)
		}
		u.NetTotal = u.NetTotal.Add(r.Net)
		if r.Net.IsPositive() {
			u.Streak++
		} else {
			u.Streak = 0
		}
	}

	cp := *res
	e.Resolution = &cp
	e.Status = model.StatusResolved
	if act != nil {
		s.activity = append(s.activity, *act)
	}
	return nil
}

// RevertResolution is the inverse of ApplyResolution. The streak reversal is
// approximate: the pre-resolve streak is not stored, so a positive-net
// streak is decremented, floored at zero, and losses are left untouched.
func (s *MemoryStore) RevertResolution(_ context.Context, eventID string, results []model.NetResult, act *model.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if e.Status != model.StatusResolved || e.Resolution == nil {
		return ErrInvalidState
	}

	for _, r := range results {
		u, ok := s.users[r.UserID]
		if !ok {
			return fmt.Errorf("user %s: %w", r.UserID, ErrNotFound)
		}
		u.NetTotal = u.NetTotal.Sub(r.Net)
		if r.Net.IsPositive() && u.Streak > 0 {
			u.Streak--
		}
	}

	e.Resolution = nil
	e.Status = model.StatusActive
	if act != nil {
		s.activity = append(s.activity, *act)
	}
	return nil
}
