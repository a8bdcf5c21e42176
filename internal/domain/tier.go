// Package domain contains core business types and interfaces.
//
// This file defines subscription tiers and the static quota policy table.
package domain

import (
	"encoding/json"
	"strconv"
)

// SubscriptionTier represents the pricing tier of a subscription.
type SubscriptionTier string

const (
	TierFreemium     SubscriptionTier = "freemium"
	TierPremium      SubscriptionTier = "premium"
	TierSmartPremium SubscriptionTier = "smart_premium"
)

// Valid returns true if t is one of the known tiers.
func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierFreemium, TierPremium, TierSmartPremium:
		return true
	}
	return false
}

// OrDefault returns t when it is a known tier and TierFreemium otherwise.
// Every call site that reads a tier from outside the policy table goes
// through this, so an unknown tier is always treated as the most restrictive.
func (t SubscriptionTier) OrDefault() SubscriptionTier {
	if t.Valid() {
		return t
	}
	return TierFreemium
}

// Quantity is a non-negative count that may also be unlimited.
// It marshals to a JSON number, or to the string "unlimited".
type Quantity struct {
	N         int
	Unlimited bool
}

// Limited returns a finite quantity.
func Limited(n int) Quantity {
	if n < 0 {
		n = 0
	}
	return Quantity{N: n}
}

// UnlimitedQuantity returns the unlimited sentinel.
func UnlimitedQuantity() Quantity {
	return Quantity{Unlimited: true}
}

func (q Quantity) String() string {
	if q.Unlimited {
		return "unlimited"
	}
	return strconv.Itoa(q.N)
}

// MarshalJSON implements json.Marshaler.
func (q Quantity) MarshalJSON() ([]byte, error) {
	if q.Unlimited {
		return []byte(`"unlimited"`), nil
	}
	return json.Marshal(q.N)
}

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	if string(data) == `"unlimited"` {
		*q = UnlimitedQuantity()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*q = Limited(n)
	return nil
}

// QuotaLimits defines the per-cycle limits and capabilities of a tier.
type QuotaLimits struct {
	Messages            Quantity `json:"messages"`
	Calls               int      `json:"calls"`
	CallDuration        int      `json:"callDuration"` // minutes, informational
	ChatAttachments     bool     `json:"chatAttachments"`
	MaxAttachmentBytes  int64    `json:"maxAttachmentBytes"` // 0 when attachments are not included
	NutritionPersistent bool     `json:"nutritionPersistent"`
	NutritionWindowDays *int     `json:"nutritionWindowDays"` // nil means no expiry
}

func days(n int) *int { return &n }

// tierQuotas is the policy table. Values are constants and never mutated.
var tierQuotas = map[SubscriptionTier]QuotaLimits{
	TierFreemium: {
		Messages:            Limited(20),
		Calls:               1,
		CallDuration:        15,
		ChatAttachments:     false,
		NutritionPersistent: false,
		NutritionWindowDays: days(7),
	},
	TierPremium: {
		Messages:            Limited(200),
		Calls:               2,
		CallDuration:        25,
		ChatAttachments:     true,
		MaxAttachmentBytes:  10 << 20,
		NutritionPersistent: true,
	},
	TierSmartPremium: {
		Messages:            UnlimitedQuantity(),
		Calls:               4,
		CallDuration:        25,
		ChatAttachments:     true,
		MaxAttachmentBytes:  50 << 20,
		NutritionPersistent: true,
	},
}

// LimitsFor returns the quota limits for a tier, defaulting to freemium for
// unknown tiers. The returned value is a copy.
func LimitsFor(tier SubscriptionTier) QuotaLimits {
	limits := tierQuotas[tier.OrDefault()]
	if limits.NutritionWindowDays != nil {
		limits.NutritionWindowDays = days(*limits.NutritionWindowDays)
	}
	return limits
}

// MapTierFromPlan normalizes a billing plan code into a tier.
// Unrecognized or empty codes map to freemium.
func MapTierFromPlan(planCode string) SubscriptionTier {
	switch planCode {
	case "smart_premium", "smart-premium", "smartPremium":
		return TierSmartPremium
	case "premium":
		return TierPremium
	default:
		return TierFreemium
	}
}
