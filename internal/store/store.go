// Package store defines the persistence interface for the WagerPals backend.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/viraatdas/wagerpals/internal/model"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidState is returned when a resolution apply/revert finds the
	// event in the wrong lifecycle state.
	ErrInvalidState = errors.New("store: event in wrong state")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Users ---

	// CreateUser persists a new user.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// ListUsers returns all users (leaderboard source).
	ListUsers(ctx context.Context) ([]model.User, error)

	// AddToTotalBet applies a delta to a user's lifetime total_bet.
	// Negative deltas reverse a deleted bet.
	AddToTotalBet(ctx context.Context, userID string, delta decimal.Decimal) error

	// --- Groups ---

	CreateGroup(ctx context.Context, g *model.Group) error
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	GetGroupByInviteCode(ctx context.Context, code string) (*model.Group, error)
	AddGroupMember(ctx context.Context, groupID, userID string) error
	ListGroupsByMember(ctx context.Context, userID string) ([]model.Group, error)

	// --- Events ---

	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEventsByGroup(ctx context.Context, groupID string) ([]model.Event, error)

	// DeleteEvent removes an event and cascades to its bets.
	DeleteEvent(ctx context.Context, id string) error

	// --- Bets ---

	InsertBet(ctx context.Context, b *model.Bet) error
	GetBet(ctx context.Context, id string) (*model.Bet, error)
	GetBetsByEvent(ctx context.Context, eventID string) ([]model.Bet, error)
	DeleteBet(ctx context.Context, id string) error

	// GetUserEventStake returns a user's total stake on one event.
	GetUserEventStake(ctx context.Context, userID, eventID string) (decimal.Decimal, error)

	// GetUserOutstandingStake returns a user's total stake across all
	// active (unresolved) events.
	GetUserOutstandingStake(ctx context.Context, userID string) (decimal.Decimal, error)

	// --- Comments ---

	InsertComment(ctx context.Context, c *model.Comment) error
	GetCommentsByEvent(ctx context.Context, eventID string) ([]model.Comment, error)

	// --- Activity feed ---

	AppendActivity(ctx context.Context, a *model.Activity) error
	ListActivity(ctx context.Context, limit int) ([]model.Activity, error)

	// --- Push subscriptions ---

	SavePushSubscription(ctx context.Context, s *model.PushSubscription) error
	DeletePushSubscription(ctx context.Context, endpoint string) error
	ListPushSubscriptions(ctx context.Context) ([]model.PushSubscription, error)

	// --- Resolution ---

	// ApplyResolution marks an active event resolved and applies each net
	// result to its user's aggregates (net_total += net; streak increments
	// on a positive net, otherwise resets to zero), plus the activity
	// entry, atomically. Returns ErrInvalidState if the event is not
	// active.
	ApplyResolution(ctx context.Context, eventID string, res *model.Resolution, results []model.NetResult, act *model.Activity) error

	// RevertResolution returns a resolved event to active and reverses the
	// aggregates (net_total -= net; streak decrements only for a positive
	// net, floored at zero; an approximate inverse since the pre-resolve
	// streak is not stored), plus the activity entry, atomically. Returns
	// ErrInvalidState if the event is not resolved.
	RevertResolution(ctx context.Context, eventID string, results []model.NetResult, act *model.Activity) error
}
