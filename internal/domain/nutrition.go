package domain

import (
	"math"
	"time"
)

// NutritionAccess describes whether a user can open their nutrition plan.
// Freemium plans expire after the tier's window; paid tiers never expire.
type NutritionAccess struct {
	CanAccess      bool       `json:"canAccess"`
	IsLocked       bool       `json:"isLocked"`
	IsExpired      bool       `json:"isExpired"`
	DaysRemaining  *int       `json:"daysRemaining"`
	HoursRemaining *int       `json:"hoursRemaining"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	ExpiryMessage  string     `json:"expiryMessage,omitempty"`
}

// NutritionStatus computes nutrition access from a ledger at now.
func NutritionStatus(l QuotaLedger, now time.Time) NutritionAccess {
	limits := LimitsFor(l.Tier)
	if limits.NutritionPersistent {
		return NutritionAccess{CanAccess: true}
	}

	if l.NutritionExpiresAt == nil {
		return NutritionAccess{
			IsLocked:      true,
			ExpiryMessage: "Nutrition plan not generated",
		}
	}

	diff := l.NutritionExpiresAt.Sub(now)
	if diff <= 0 {
		zero := 0
		return NutritionAccess{
			IsLocked:       true,
			IsExpired:      true,
			DaysRemaining:  &zero,
			HoursRemaining: &zero,
			ExpiresAt:      l.NutritionExpiresAt,
			ExpiryMessage:  "Access expired - upgrade to unlock",
		}
	}

	daysLeft := int(math.Ceil(diff.Hours() / 24))
	hoursLeft := int(math.Ceil(diff.Hours()))
	return NutritionAccess{
		CanAccess:      true,
		DaysRemaining:  &daysLeft,
		HoursRemaining: &hoursLeft,
		ExpiresAt:      l.NutritionExpiresAt,
	}
}

// NutritionExpiry returns when a nutrition window started at start ends for
// tier, or nil when the tier has no window.
func NutritionExpiry(tier SubscriptionTier, start time.Time) *time.Time {
	limits := LimitsFor(tier)
	if limits.NutritionPersistent || limits.NutritionWindowDays == nil {
		return nil
	}
	t := start.UTC().AddDate(0, 0, *limits.NutritionWindowDays)
	return &t
}
