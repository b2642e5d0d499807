// Package model defines the core domain types shared across the WagerPals
// backend. All monetary values use shopspring/decimal — never float64 for money.
//
// Timestamps are epoch milliseconds (int64) to match the JSON contract
// consumed by the web and mobile clients.
package model

import (
	"github.com/shopspring/decimal"
)

// Event lifecycle states.
const (
	StatusActive   = "active"
	StatusResolved = "resolved"
)

// Resolution records the outcome of a resolved event. Present iff the
// event's status is StatusResolved.
type Resolution struct {
	WinningSide string `json:"winning_side" db:"winning_side"`
	Note        string `json:"note,omitempty" db:"resolution_note"`
	ResolvedAt  int64  `json:"resolved_at" db:"resolved_at"`
	ResolvedBy  string `json:"resolved_by" db:"resolved_by"`
}

// Event is a two-sided wager between members of a group. Sides are free-form
// strings; membership is checked at bet placement and resolution time.
type Event struct {
	ID         string      `json:"id" db:"id"`
	GroupID    string      `json:"group_id" db:"group_id"`
	Title      string      `json:"title" db:"title"`
	SideA      string      `json:"side_a" db:"side_a"`
	SideB      string      `json:"side_b" db:"side_b"`
	EndTime    int64       `json:"end_time" db:"end_time"` // epoch millis
	Status     string      `json:"status" db:"status"`
	CreatedBy  string      `json:"created_by" db:"created_by"`
	CreatedAt  int64       `json:"created_at" db:"created_at"`
	Resolution *Resolution `json:"resolution,omitempty"`
}

// Sides returns the event's named sides.
func (e *Event) Sides() []string {
	return []string{e.SideA, e.SideB}
}

// HasSide reports whether side is one of the event's named sides.
func (e *Event) HasSide(side string) bool {
	return side == e.SideA || side == e.SideB
}

// Bet is an immutable record of one wager on one side of an event.
// Late bets (placed after the event's end time) are flagged and excluded
// from pot math, but still count toward the bettor's lifetime total.
type Bet struct {
	ID        string          `json:"id" db:"id"`
	EventID   string          `json:"event_id" db:"event_id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Username  string          `json:"username" db:"username"`
	Side      string          `json:"side" db:"side"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Note      string          `json:"note,omitempty" db:"note"`
	Timestamp int64           `json:"timestamp" db:"timestamp"` // epoch millis
	IsLate    bool            `json:"is_late" db:"is_late"`
}

// User carries the aggregate stats mutated by the resolution workflow and
// the bet lifecycle. NetTotal and Streak change only on resolve/unresolve;
// TotalBet changes on bet create/delete.
type User struct {
	ID       string          `json:"id" db:"id"`
	Username string          `json:"username" db:"username"`
	NetTotal decimal.Decimal `json:"net_total" db:"net_total"`
	TotalBet decimal.Decimal `json:"total_bet" db:"total_bet"`
	Streak   int             `json:"streak" db:"streak"`
}

// Group is a friend group that owns events. Joining requires the group's
// invite code.
type Group struct {
	ID         string   `json:"id" db:"id"`
	Name       string   `json:"name" db:"name"`
	InviteCode string   `json:"invite_code" db:"invite_code"`
	CreatedBy  string   `json:"created_by" db:"created_by"`
	CreatedAt  int64    `json:"created_at" db:"created_at"`
	Members    []string `json:"members"`
}

// Comment is free-form discussion attached to an event.
type Comment struct {
	ID        string `json:"id" db:"id"`
	EventID   string `json:"event_id" db:"event_id"`
	UserID    string `json:"user_id" db:"user_id"`
	Username  string `json:"username" db:"username"`
	Text      string `json:"text" db:"text"`
	Timestamp int64  `json:"timestamp" db:"timestamp"`
}

// Activity feed entry types.
const (
	ActivityBet       = "bet"
	ActivityResolve   = "resolve"
	ActivityUnresolve = "unresolve"
)

// Activity is one entry in the group-visible activity feed.
type Activity struct {
	ID         string `json:"id" db:"id"`
	Type       string `json:"type" db:"type"`
	EventID    string `json:"event_id" db:"event_id"`
	EventTitle string `json:"event_title" db:"event_title"`
	Message    string `json:"message" db:"message"`
	Timestamp  int64  `json:"timestamp" db:"timestamp"`
}

// PushSubscription is a stored Web Push subscription for one user's
// browser or mobile client.
type PushSubscription struct {
	UserID   string `json:"user_id" db:"user_id"`
	Endpoint string `json:"endpoint" db:"endpoint"`
	P256dh   string `json:"p256dh" db:"p256dh"`
	Auth     string `json:"auth" db:"auth"`
}

// NetResult is a participant's net gain or loss from one resolution,
// rounded to cents. Derived, never persisted; only the aggregate effect
// lands on User.
type NetResult struct {
	UserID   string          `json:"user_id"`
	Username string          `json:"username"`
	Net      decimal.Decimal `json:"net"`
}

// Payment is a suggested peer-to-peer transfer that reduces the imbalance
// between a net-positive and a net-negative participant. Display-only.
type Payment struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}
