package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/viraatdas/wagerpals/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot reads (event and user rows). Writes go to the primary
// store and invalidate the cache; everything else passes through.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through ---

func (s *CachedStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	data, err := s.rdb.Get(ctx, eventKey(id)).Bytes()
	if err == nil {
		var e model.Event
		if json.Unmarshal(data, &e) == nil {
			return &e, nil
		}
	}

	e, err := s.primary.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheEvent(ctx, e)
	return e, nil
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err == nil {
		var u model.User
		if json.Unmarshal(data, &u) == nil {
			return &u, nil
		}
	}

	u, err := s.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(u); err == nil {
		s.rdb.Set(ctx, userKey(id), data, s.ttl)
	}
	return u, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateEvent(ctx context.Context, e *model.Event) error {
	if err := s.primary.CreateEvent(ctx, e); err != nil {
		return err
	}
	s.cacheEvent(ctx, e)
	return nil
}

func (s *CachedStore) DeleteEvent(ctx context.Context, id string) error {
	if err := s.primary.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, eventKey(id))
	return nil
}

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	return s.primary.CreateUser(ctx, u)
}

func (s *CachedStore) AddToTotalBet(ctx context.Context, userID string, delta decimal.Decimal) error {
	if err := s.primary.AddToTotalBet(ctx, userID, delta); err != nil {
		return err
	}
	s.rdb.Del(ctx, userKey(userID))
	return nil
}

// ApplyResolution invalidates the event and every touched user; next read
// re-populates from the primary.
func (s *CachedStore) ApplyResolution(ctx context.Context, eventID string, res *model.Resolution, results []model.NetResult, act *model.Activity) error {
	if err := s.primary.ApplyResolution(ctx, eventID, res, results, act); err != nil {
		return err
	}
	s.invalidateResolution(ctx, eventID, results)
	return nil
}

func (s *CachedStore) RevertResolution(ctx context.Context, eventID string, results []model.NetResult, act *model.Activity) error {
	if err := s.primary.RevertResolution(ctx, eventID, results, act); err != nil {
		return err
	}
	s.invalidateResolution(ctx, eventID, results)
	return nil
}

func (s *CachedStore) invalidateResolution(ctx context.Context, eventID string, results []model.NetResult) {
	keys := []string{eventKey(eventID)}
	for _, r := range results {
		keys = append(keys, userKey(r.UserID))
	}
	s.rdb.Del(ctx, keys...)
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.primary.ListUsers(ctx)
}

func (s *CachedStore) CreateGroup(ctx context.Context, g *model.Group) error {
	return s.primary.CreateGroup(ctx, g)
}

func (s *CachedStore) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	return s.primary.GetGroup(ctx, id)
}

func (s *CachedStore) GetGroupByInviteCode(ctx context.Context, code string) (*model.Group, error) {
	return s.primary.GetGroupByInviteCode(ctx, code)
}

func (s *CachedStore) AddGroupMember(ctx context.Context, groupID, userID string) error {
	return s.primary.AddGroupMember(ctx, groupID, userID)
}

func (s *CachedStore) ListGroupsByMember(ctx context.Context, userID string) ([]model.Group, error) {
	return s.primary.ListGroupsByMember(ctx, userID)
}

func (s *CachedStore) ListEventsByGroup(ctx context.Context, groupID string) ([]model.Event, error) {
	return s.primary.ListEventsByGroup(ctx, groupID)
}

func (s *CachedStore) InsertBet(ctx context.Context, b *model.Bet) error {
	return s.primary.InsertBet(ctx, b)
}

func (s *CachedStore) GetBet(ctx context.Context, id string) (*model.Bet, error) {
	return s.primary.GetBet(ctx, id)
}

func (s *CachedStore) GetBetsByEvent(ctx context.Context, eventID string) ([]model.Bet, error) {
	return s.primary.GetBetsByEvent(ctx, eventID)
}

func (s *CachedStore) DeleteBet(ctx context.Context, id string) error {
	return s.primary.DeleteBet(ctx, id)
}

func (s *CachedStore) GetUserEventStake(ctx context.Context, userID, eventID string) (decimal.Decimal, error) {
	return s.primary.GetUserEventStake(ctx, userID, eventID)
}

func (s *CachedStore) GetUserOutstandingStake(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.primary.GetUserOutstandingStake(ctx, userID)
}

func (s *CachedStore) InsertComment(ctx context.Context, c *model.Comment) error {
	return s.primary.InsertComment(ctx, c)
}

func (s *CachedStore) GetCommentsByEvent(ctx context.Context, eventID string) ([]model.Comment, error) {
	return s.primary.GetCommentsByEvent(ctx, eventID)
}

func (s *CachedStore) AppendActivity(ctx context.Context, a *model.Activity) error {
	return s.primary.AppendActivity(ctx, a)
}

func (s *CachedStore) ListActivity(ctx context.Context, limit int) ([]model.Activity, error) {
	return s.primary.ListActivity(ctx, limit)
}

func (s *CachedStore) SavePushSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.primary.SavePushSubscription(ctx, sub)
}

func (s *CachedStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	return s.primary.DeletePushSubscription(ctx, endpoint)
}

func (s *CachedStore) ListPushSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	return s.primary.ListPushSubscriptions(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheEvent(ctx context.Context, e *model.Event) {
	if data, err := json.Marshal(e); err == nil {
		s.rdb.Set(ctx, eventKey(e.ID), data, s.ttl)
	}
}

func eventKey(id string) string { return fmt.Sprintf("event:%s", id) }
func userKey(id string) string  { return fmt.Sprintf("user:%s", id) }
