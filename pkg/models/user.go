package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User represents one registered account
type User struct {
	ID            string       `json:"id" validate:"required"`
	Email         string       `json:"email" validate:"required,email"`
	Name          string       `json:"name,omitempty"`
	IsActive      bool         `json:"is_active"`
	EmailVerified bool         `json:"email_verified"`
	Preferences   Preferences  `json:"preferences"`
	Subscription  Subscription `json:"subscription"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Preferences holds per-user settings
type Preferences struct {
	Language           string `json:"language"`
	Theme              string `json:"theme"`
	DefaultModel       string `json:"default_model"`
	EmailNotifications bool   `json:"email_notifications"`
	UsageAlerts        bool   `json:"usage_alerts"`
}

// Subscription is embedded in User; exactly one per account
type Subscription struct {
	Plan      string      `json:"plan" validate:"required,oneof=free pro enterprise"`
	Status    string      `json:"status" validate:"required,oneof=active cancelled expired trial"`
	StartDate time.Time   `json:"start_date"`
	EndDate   *time.Time  `json:"end_date,omitempty"`
	AutoRenew bool        `json:"auto_renew"`
	Limits    UsageLimits `json:"limits"`
}

// UsageLimits caps a subscription's consumption per dimension
type UsageLimits struct {
	DailyRequests       int `json:"daily_requests" validate:"gte=0"`
	MonthlyRequests     int `json:"monthly_requests" validate:"gte=0"`
	MaxTokensPerRequest int `json:"max_tokens_per_request" validate:"gte=0"`
	MaxPromptsPerDay    int `json:"max_prompts_per_day" validate:"gte=0"`
	MaxDocumentSizeMB   int `json:"max_document_size_mb" validate:"gte=0"`
}

// Plan constants
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Subscription status constants
const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
	SubscriptionTrial     = "trial"
)

// FreePlanLimits returns the usage limits for the free plan
func FreePlanLimits() UsageLimits {
	return UsageLimits{
		DailyRequests:       50,
		MonthlyRequests:     1000,
		MaxTokensPerRequest: 2048,
		MaxPromptsPerDay:    20,
		MaxDocumentSizeMB:   5,
	}
}

// ProPlanLimits returns the usage limits for the pro plan
func ProPlanLimits() UsageLimits {
	return UsageLimits{
		DailyRequests:       1000,
		MonthlyRequests:     25000,
		MaxTokensPerRequest: 8192,
		MaxPromptsPerDay:    500,
		MaxDocumentSizeMB:   50,
	}
}

// EnterprisePlanLimits returns the usage limits for the enterprise plan
func EnterprisePlanLimits() UsageLimits {
	return UsageLimits{
		DailyRequests:       10000,
		MonthlyRequests:     500000,
		MaxTokensPerRequest: 32768,
		MaxPromptsPerDay:    5000,
		MaxDocumentSizeMB:   500,
	}
}

// LimitsForPlan returns the preset limits for a plan name, falling back to free
func LimitsForPlan(plan string) UsageLimits {
	switch plan {
	case PlanPro:
		return ProPlanLimits()
	case PlanEnterprise:
		return EnterprisePlanLimits()
	default:
		return FreePlanLimits()
	}
}

// NewUser creates a user with a fresh id, default preferences and plan limits
func NewUser(email, name, plan string) *User {
	if plan == "" {
		plan = PlanFree
	}
	now := time.Now().UTC()

	return &User{
		ID:            uuid.New().String(),
		Email:         strings.ToLower(strings.TrimSpace(email)),
		Name:          name,
		IsActive:      true,
		EmailVerified: false,
		Preferences: Preferences{
			Language:           "en",
			Theme:              "light",
			DefaultModel:       "gpt-4",
			EmailNotifications: true,
			UsageAlerts:        true,
		},
		Subscription: Subscription{
			Plan:      plan,
			Status:    SubscriptionActive,
			StartDate: now,
			AutoRenew: plan != PlanFree,
			Limits:    LimitsForPlan(plan),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
