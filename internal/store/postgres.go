package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/viraatdas/wagerpals/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// timestamps are BIGINT epoch millis.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, net_total, total_bet, streak)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5)`,
		u.ID, u.Username, u.NetTotal.String(), u.TotalBet.String(), u.Streak,
	)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	var netTotal, totalBet string

	err := s.pool.QueryRow(ctx,
		`SELECT id, username, net_total::TEXT, total_bet::TEXT, streak
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &netTotal, &totalBet, &u.Streak)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	u.NetTotal, _ = decimal.NewFromString(netTotal)
	u.TotalBet, _ = decimal.NewFromString(totalBet)
	return &u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, net_total::TEXT, total_bet::TEXT, streak
		 FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var netTotal, totalBet string
		if err := rows.Scan(&u.ID, &u.Username, &netTotal, &totalBet, &u.Streak); err != nil {
			return nil, err
		}
		u.NetTotal, _ = decimal.NewFromString(netTotal)
		u.TotalBet, _ = decimal.NewFromString(totalBet)
		users = append(users, u)
	}
	return users, rows.Err()
}

// AddToTotalBet is an atomic SQL-side delta so concurrent bet placement
// never loses updates.
func (s *PostgresStore) AddToTotalBet(ctx context.Context, userID string, delta decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET total_bet = total_bet + $2::NUMERIC WHERE id = $1`,
		userID, delta.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

// --- Groups ---

func (s *PostgresStore) CreateGroup(ctx context.Context, g *model.Group) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO groups (id, name, invite_code, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		g.ID, g.Name, g.InviteCode, g.CreatedBy, g.CreatedAt,
	)
	if err != nil {
		return err
	}
	for _, m := range g.Members {
		if _, err := tx.Exec(ctx,
			`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, g.ID, m); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	var g model.Group
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, invite_code, created_by, created_at
		 FROM groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.InviteCode, &g.CreatedBy, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", id, err)
	}

	g.Members, err = s.groupMembers(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *PostgresStore) GetGroupByInviteCode(ctx context.Context, code string) (*model.Group, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM groups WHERE invite_code = $1`, code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("invite code %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.GetGroup(ctx, id)
}

func (s *PostgresStore) AddGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, groupID, userID)
	return err
}

func (s *PostgresStore) ListGroupsByMember(ctx context.Context, userID string) ([]model.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT g.id, g.name, g.invite_code, g.created_by, g.created_at
		 FROM groups g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.user_id = $1
		 ORDER BY g.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.InviteCode, &g.CreatedBy, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		if groups[i].Members, err = s.groupMembers(ctx, groups[i].ID); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (s *PostgresStore) groupMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// --- Events ---

const eventColumns = `id, group_id, title, side_a, side_b, end_time, status,
       created_by, created_at, winning_side, resolution_note, resolved_at, resolved_by`

func (s *PostgresStore) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, group_id, title, side_a, side_b, end_time, status, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.GroupID, e.Title, e.SideA, e.SideB, e.EndTime, e.Status, e.CreatedBy, e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)

	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) ListEventsByGroup(ctx context.Context, groupID string) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE group_id = $1 ORDER BY created_at DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM bets WHERE event_id = $1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return tx.Commit(ctx)
}

type pgxRow interface {
	Scan(dest ...any) error
}

func scanEvent(row pgxRow) (*model.Event, error) {
	var e model.Event
	var winningSide, note, resolvedBy *string
	var resolvedAt *int64

	err := row.Scan(&e.ID, &e.GroupID, &e.Title, &e.SideA, &e.SideB, &e.EndTime,
		&e.Status, &e.CreatedBy, &e.CreatedAt,
		&winningSide, &note, &resolvedAt, &resolvedBy)
	if err != nil {
		return nil, err
	}

	if e.Status == model.StatusResolved && winningSide != nil {
		res := &model.Resolution{WinningSide: *winningSide}
		if note != nil {
			res.Note = *note
		}
		if resolvedAt != nil {
			res.ResolvedAt = *resolvedAt
		}
		if resolvedBy != nil {
			res.ResolvedBy = *resolvedBy
		}
		e.Resolution = res
	}
	return &e, nil
}

// --- Bets ---

func (s *PostgresStore) InsertBet(ctx context.Context, b *model.Bet) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bets (id, event_id, user_id, username, side, amount, note, timestamp, is_late)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9)`,
		b.ID, b.EventID, b.UserID, b.Username, b.Side,
		b.Amount.String(), b.Note, b.Timestamp, b.IsLate,
	)
	return err
}

const betColumns = `id, event_id, user_id, username, side, amount::TEXT, note, timestamp, is_late`

func (s *PostgresStore) GetBet(ctx context.Context, id string) (*model.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betColumns+` FROM bets WHERE id = $1`, id)

	b, err := scanBet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("bet %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get bet %s: %w", id, err)
	}
	return b, nil
}

func (s *PostgresStore) GetBetsByEvent(ctx context.Context, eventID string) ([]model.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE event_id = $1 ORDER BY timestamp`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []model.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, *b)
	}
	return bets, rows.Err()
}

func (s *PostgresStore) DeleteBet(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bet %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetUserEventStake(ctx context.Context, userID, eventID string) (decimal.Decimal, error) {
	var stakeS string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::TEXT FROM bets
		 WHERE user_id = $1 AND event_id = $2`, userID, eventID).Scan(&stakeS)
	if err != nil {
		return decimal.Zero, err
	}
	stake, _ := decimal.NewFromString(stakeS)
	return stake, nil
}

func (s *PostgresStore) GetUserOutstandingStake(ctx context.Context, userID string) (decimal.Decimal, error) {
	var stakeS string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(b.amount), 0)::TEXT
		 FROM bets b
		 JOIN events e ON e.id = b.event_id
		 WHERE b.user_id = $1 AND e.status = 'active'`, userID).Scan(&stakeS)
	if err != nil {
		return decimal.Zero, err
	}
	stake, _ := decimal.NewFromString(stakeS)
	return stake, nil
}

func scanBet(row pgxRow) (*model.Bet, error) {
	var b model.Bet
	var amountS string

	if err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.Username, &b.Side,
		&amountS, &b.Note, &b.Timestamp, &b.IsLate); err != nil {
		return nil, err
	}
	b.Amount, _ = decimal.NewFromString(amountS)
	return &b, nil
}

// --- Comments ---

func (s *PostgresStore) InsertComment(ctx context.Context, c *model.Comment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO comments (id, event_id, user_id, username, text, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.EventID, c.UserID, c.Username, c.Text, c.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetCommentsByEvent(ctx context.Context, eventID string) ([]model.Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, user_id, username, text, timestamp
		 FROM comments WHERE event_id = $1 ORDER BY timestamp`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.EventID, &c.UserID, &c.Username, &c.Text, &c.Timestamp); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// --- Activity feed ---

func (s *PostgresStore) AppendActivity(ctx context.Context, a *model.Activity) error {
	_, err := s.pool.Exec(ctx, insertActivitySQL,
		a.ID, a.Type, a.EventID, a.EventTitle, a.Message, a.Timestamp)
	return err
}

const insertActivitySQL = `INSERT INTO activity (id, type, event_id, event_title, message, timestamp)
	 VALUES ($1, $2, $3, $4, $5, $6)`

func (s *PostgresStore) ListActivity(ctx context.Context, limit int) ([]model.Activity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, event_id, event_title, message, timestamp
		 FROM activity ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.Activity
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.Type, &a.EventID, &a.EventTitle, &a.Message, &a.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

// --- Push subscriptions ---

func (s *PostgresStore) SavePushSubscription(ctx context.Context, sub *model.PushSubscription) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO push_subscriptions (endpoint, user_id, p256dh, auth)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (endpoint) DO UPDATE SET user_id = $2, p256dh = $3, auth = $4`,
		sub.Endpoint, sub.UserID, sub.P256dh, sub.Auth,
	)
	return err
}

func (s *PostgresStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}

func (s *PostgresStore) ListPushSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT endpoint, user_id, p256dh, auth FROM push_subscriptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		var sub model.PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.UserID, &sub.P256dh, &sub.Auth); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// --- Resolution ---

// ApplyResolution runs the whole resolve write-set in one transaction:
// the event row flips to resolved (guarded on the current state), each
// user's aggregates are applied as SQL-side deltas, and the activity entry
// is appended. Either everything commits or nothing does.
func (s *PostgresStore) ApplyResolution(ctx context.Context, eventID string, res *model.Resolution, results []model.NetResult, act *model.Activity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE events
		 SET status = 'resolved', winning_side = $2, resolution_note = $3,
		     resolved_at = $4, resolved_by = $5
		 WHERE id = $1 AND status = 'active'`,
		eventID, res.WinningSide, res.Note, res.ResolvedAt, res.ResolvedBy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}

	for _, r := range results {
		tag, err := tx.Exec(ctx,
			`UPDATE users
			 SET net_total = net_total + $2::NUMERIC,
			     streak = CASE WHEN $3 THEN streak + 1 ELSE 0 END
			 WHERE id = $1`,
			r.UserID, r.Net.String(), r.Net.IsPositive(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %s: %w", r.UserID, ErrNotFound)
		}
	}

	if act != nil {
		if _, err := tx.Exec(ctx, insertActivitySQL,
			act.ID, act.Type, act.EventID, act.EventTitle, act.Message, act.Timestamp); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// RevertResolution is the transactional inverse of ApplyResolution. The
// streak reversal is approximate: decrement on a positive net, floored at
// zero; the pre-resolve streak is not stored.
func (s *PostgresStore) RevertResolution(ctx context.Context, eventID string, results []model.NetResult, act *model.Activity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE events
		 SET status = 'active', winning_side = NULL, resolution_note = NULL,
		     resolved_at = NULL, resolved_by = NULL
		 WHERE id = $1 AND status = 'resolved'`,
		eventID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}

	for _, r := range results {
		tag, err := tx.Exec(ctx,
			`UPDATE users
			 SET net_total = net_total - $2::NUMERIC,
			     streak = CASE WHEN $3 AND streak > 0 THEN streak - 1 ELSE streak END
			 WHERE id = $1`,
			r.UserID, r.Net.String(), r.Net.IsPositive(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %s: %w", r.UserID, ErrNotFound)
		}
	}

	if act != nil {
		if _, err := tx.Exec(ctx, insertActivitySQL,
			act.ID, act.Type, act.EventID, act.EventTitle, act.Message, act.Timestamp); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
