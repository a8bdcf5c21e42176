// Package domain contains core business types and interfaces.
//
// This file defines the quota ledger, quota actions, and the pure evaluator
// that decides whether an action is allowed for a given ledger state.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuotaWarningThreshold is the usage fraction at which an allowed action
// carries a warning.
const QuotaWarningThreshold = 0.8

// Denial reasons returned by Evaluate.
const (
	ReasonMessageQuotaExceeded = "Message quota exceeded"
	ReasonCallQuotaExceeded    = "Video call quota exceeded"
	ReasonAttachmentsPremium   = "Attachments require Premium subscription"
	ReasonUnsupportedAction    = "Unsupported action"
)

// =============================================================================
// Actions
// =============================================================================

// Action identifies the resource a quota operation applies to.
// The zero value is not a valid action.
type Action uint8

const (
	ActionMessage Action = iota + 1
	ActionCall
	ActionAttachment
)

func (a Action) String() string {
	switch a {
	case ActionMessage:
		return "message"
	case ActionCall:
		return "call"
	case ActionAttachment:
		return "attachment"
	}
	return "unknown"
}

// ParseAction converts the wire name of an action. ok is false for unknown names.
func ParseAction(s string) (Action, bool) {
	switch s {
	case "message":
		return ActionMessage, true
	case "call":
		return ActionCall, true
	case "attachment":
		return ActionAttachment, true
	}
	return 0, false
}

// ActionCases must be implemented by anything that branches on an Action.
// Adding a resource adds a method here, which breaks every implementation
// until it handles the new case.
type ActionCases[T any] interface {
	Message() T
	Call() T
	Attachment() T
}

// MatchAction dispatches a to the matching case. ok is false when a is not a
// known action, in which case the zero T is returned.
func MatchAction[T any](a Action, cases ActionCases[T]) (result T, ok bool) {
	switch a {
	case ActionMessage:
		return cases.Message(), true
	case ActionCall:
		return cases.Call(), true
	case ActionAttachment:
		return cases.Attachment(), true
	}
	return result, false
}

// =============================================================================
// Ledger
// =============================================================================

// QuotaLedger holds a user's usage counters for the current billing cycle.
//
// ResetAt is the exclusive upper bound of the cycle: once now >= ResetAt the
// counters belong to a finished cycle and must be reset before being read.
type QuotaLedger struct {
	UserID              uuid.UUID        `json:"userId"`
	Tier                SubscriptionTier `json:"tier"`
	MessagesUsed        int              `json:"messagesUsed"`
	CallsUsed           int              `json:"callsUsed"`
	AttachmentsUsed     int              `json:"attachmentsUsed"`
	ResetAt             time.Time        `json:"resetAt"`
	NutritionWindowDays *int             `json:"nutritionWindowDays"`
	NutritionExpiresAt  *time.Time       `json:"nutritionExpiresAt"`
	NutritionLocked     bool             `json:"nutritionLocked"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// CycleElapsed returns true if the ledger's cycle has ended at now.
func (l *QuotaLedger) CycleElapsed(now time.Time) bool {
	return !now.Before(l.ResetAt)
}

// NextResetDate returns the first instant of the UTC calendar month after from.
func NextResetDate(from time.Time) time.Time {
	from = from.UTC()
	return time.Date(from.Year(), from.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// QuotaUsage is the client-facing view of a ledger's counters.
type QuotaUsage struct {
	MessagesUsed    int       `json:"messagesUsed"`
	CallsUsed       int       `json:"callsUsed"`
	AttachmentsUsed int       `json:"attachmentsUsed"`
	ResetAt         time.Time `json:"resetAt"`
}

// QuotaSnapshot is a read-only projection of a ledger and its tier limits.
type QuotaSnapshot struct {
	UserID uuid.UUID        `json:"userId"`
	Tier   SubscriptionTier `json:"tier"`
	Usage  QuotaUsage       `json:"usage"`
	Limits QuotaLimits      `json:"limits"`
}

// NewQuotaSnapshot builds a snapshot from a ledger.
func NewQuotaSnapshot(l QuotaLedger) QuotaSnapshot {
	return QuotaSnapshot{
		UserID: l.UserID,
		Tier:   l.Tier.OrDefault(),
		Usage: QuotaUsage{
			MessagesUsed:    l.MessagesUsed,
			CallsUsed:       l.CallsUsed,
			AttachmentsUsed: l.AttachmentsUsed,
			ResetAt:         l.ResetAt,
		},
		Limits: LimitsFor(l.Tier),
	}
}

// =============================================================================
// Evaluation
// =============================================================================

// QuotaEvaluation is the outcome of evaluating an action against a ledger.
// Denials are ordinary values, not errors.
type QuotaEvaluation struct {
	Allowed      bool      `json:"allowed"`
	Reason       string    `json:"reason,omitempty"`
	Remaining    *Quantity `json:"remaining,omitempty"`
	UsagePercent *float64  `json:"usagePercent,omitempty"`
	Warning      bool      `json:"warning"`
}

func allow(remaining Quantity, usage *float64) QuotaEvaluation {
	ev := QuotaEvaluation{Allowed: true, Remaining: &remaining, UsagePercent: usage}
	ev.Warning = usage != nil && *usage >= QuotaWarningThreshold
	return ev
}

func deny(reason string, remaining *Quantity) QuotaEvaluation {
	return QuotaEvaluation{Reason: reason, Remaining: remaining}
}

func percent(used, limit int) *float64 {
	if limit <= 0 {
		p := 1.0
		return &p
	}
	p := float64(used) / float64(limit)
	return &p
}

// evaluator implements ActionCases for a fixed ledger state.
type evaluator struct {
	limits QuotaLimits
	ledger QuotaLedger
}

func (e evaluator) Message() QuotaEvaluation {
	if e.limits.Messages.Unlimited {
		zero := 0.0
		return allow(UnlimitedQuantity(), &zero)
	}
	limit := e.limits.Messages.N
	used := e.ledger.MessagesUsed
	remaining := Limited(limit - used)
	if remaining.N == 0 {
		return deny(ReasonMessageQuotaExceeded, &remaining)
	}
	return allow(remaining, percent(used, limit))
}

func (e evaluator) Call() QuotaEvaluation {
	limit := e.limits.Calls
	used := e.ledger.CallsUsed
	if limit-used <= 0 {
		zero := Limited(0)
		return deny(ReasonCallQuotaExceeded, &zero)
	}
	return allow(Limited(limit-used), percent(used, limit))
}

func (e evaluator) Attachment() QuotaEvaluation {
	if !e.limits.ChatAttachments {
		return deny(ReasonAttachmentsPremium, nil)
	}
	// Capability gated only. The attachment counter never denies.
	return allow(UnlimitedQuantity(), nil)
}

// Evaluate decides whether action is allowed for ledger under limits.
// It performs no I/O and never fails; unknown actions are denied.
func Evaluate(limits QuotaLimits, ledger QuotaLedger, action Action) QuotaEvaluation {
	ev, ok := MatchAction[QuotaEvaluation](action, evaluator{limits: limits, ledger: ledger})
	if !ok {
		return deny(ReasonUnsupportedAction, nil)
	}
	return ev
}

// QuotaConsumption is the outcome of consuming one unit of an action.
// On success Usage is the ledger after the increment; on denial it is nil
// and nothing was written.
type QuotaConsumption struct {
	Allowed bool         `json:"allowed"`
	Reason  string       `json:"reason,omitempty"`
	Usage   *QuotaLedger `json:"usage,omitempty"`
}
