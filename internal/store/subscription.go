package store

import (
	"context"
	"time"

	"github.com/promptforge/promptstore/pkg/models"
)

// SubscriptionUpdate carries the caller-supplied partial fields for
// UpdateSubscription. A plan change without explicit limits picks up the
// new plan's presets; explicit limits win, which is how administrative
// overrides happen.
type SubscriptionUpdate struct {
	Plan      *string             `json:"plan,omitempty"`
	Status    *string             `json:"status,omitempty"`
	EndDate   *time.Time          `json:"end_date,omitempty"`
	AutoRenew *bool               `json:"auto_renew,omitempty"`
	Limits    *models.UsageLimits `json:"limits,omitempty"`
}

// UpdateSubscription updates the user's embedded subscription in place
func (s *Store) UpdateSubscription(ctx context.Context, userID string, update SubscriptionUpdate) (user *models.User, err error) {
	defer func(start time.Time) { s.observe("updateSubscription", userID, start, err) }(time.Now())

	current, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, newError(KindUserNotFound, "updateSubscription", userID, nil)
	}

	sub := &current.Subscription
	if update.Plan != nil && *update.Plan != sub.Plan {
		sub.Plan = *update.Plan
		if update.Limits == nil {
			sub.Limits = models.LimitsForPlan(sub.Plan)
		}
	}
	if update.Status != nil {
		sub.Status = *update.Status
	}
	if update.EndDate != nil {
		end := *update.EndDate
		sub.EndDate = &end
	}
	if update.AutoRenew != nil {
		sub.AutoRenew = *update.AutoRenew
	}
	if update.Limits != nil {
		sub.Limits = *update.Limits
	}

	if err := s.SaveUser(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// GetActiveSubscriptions returns every user whose subscription is active
func (s *Store) GetActiveSubscriptions(ctx context.Context) (users []*models.User, err error) {
	defer func(start time.Time) { s.observe("getActiveSubscriptions", "", start, err) }(time.Now())

	all, err := s.loadAllUsers()
	if err != nil {
		return nil, err
	}
	for _, u := range all {
		if u.Subscription.Status == models.SubscriptionActive {
			users = append(users, cloneUser(u))
		}
	}
	return users, nil
}

// GetExpiringSubscriptions returns active subscriptions whose end date
// falls within the next `days` days.
func (s *Store) GetExpiringSubscriptions(ctx context.Context, days int) (users []*models.User, err error) {
	defer func(start time.Time) { s.observe("getExpiringSubscriptions", "", start, err) }(time.Now())

	all, err := s.loadAllUsers()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, days)

	for _, u := range all {
		sub := u.Subscription
		if sub.Status != models.SubscriptionActive || sub.EndDate == nil {
			continue
		}
		if sub.EndDate.After(now) && !sub.EndDate.After(cutoff) {
			users = append(users, cloneUser(u))
		}
	}
	return users, nil
}
