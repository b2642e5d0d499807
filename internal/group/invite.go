// Package group handles friend-group invite codes: generation,
// normalization, and validation.
package group

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// inviteCodeRegex matches: WP-{8 uppercase hex chars}
// Example: WP-3F9A01BC
var inviteCodeRegex = regexp.MustCompile(`^WP-[0-9A-F]{8}$`)

// ErrInvalidInviteCode is returned when a code does not match the
// WP-XXXXXXXX format.
var ErrInvalidInviteCode = errors.New("group: invalid invite code format")

// NewInviteCode generates a fresh invite code. Uniqueness is enforced by
// the store's invite_code constraint, not here.
func NewInviteCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "WP-" + strings.ToUpper(raw[:8])
}

// ParseInviteCode normalizes (trim, uppercase) and validates an invite
// code as entered by a user.
func ParseInviteCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if !inviteCodeRegex.MatchString(normalized) {
		return "", fmt.Errorf("%w: %s (expected WP-XXXXXXXX)", ErrInvalidInviteCode, code)
	}
	return normalized, nil
}
