// Package domain contains core business types and interfaces.
//
// Domain types are kept apart from the repository models so quota and chat
// logic never see sql.Null* values.
package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Role is the kind of account a user holds. Coaches are never metered.
type Role string

const (
	RoleUser  Role = "user"
	RoleCoach Role = "coach"
)

// User is an account as seen by the quota and chat services.
type User struct {
	ID               uuid.UUID
	Email            string
	FullName         string
	Role             Role
	SubscriptionTier SubscriptionTier
	StripeCustomerID string
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsCoach reports whether u is a coach.
func (u *User) IsCoach() bool {
	return u.Role == RoleCoach
}

// Conversions between nullable columns and domain values.

func NullStringValue(ns sql.NullString) string {
	return ns.String
}

func NullTimeValue(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func NullInt32Value(ni sql.NullInt32) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int32)
	return &v
}

func ToNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func ToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ToNullInt32 maps nil (unlimited) to NULL.
func ToNullInt32(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}
