package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/promptforge/promptstore/pkg/models"
)

func validTestUser() *models.User {
	return models.NewUser("valid@x.com", "Valid", "free")
}

func TestValidateUser(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.User)
		valid  bool
	}{
		{
			name:   "valid user",
			mutate: func(u *models.User) {},
			valid:  true,
		},
		{
			name:   "missing id",
			mutate: func(u *models.User) { u.ID = "" },
			valid:  false,
		},
		{
			name:   "missing email",
			mutate: func(u *models.User) { u.Email = "" },
			valid:  false,
		},
		{
			name:   "malformed email",
			mutate: func(u *models.User) { u.Email = "not an email" },
			valid:  false,
		},
		{
			name:   "unknown plan",
			mutate: func(u *models.User) { u.Subscription.Plan = "platinum" },
			valid:  false,
		},
		{
			name:   "unknown status",
			mutate: func(u *models.User) { u.Subscription.Status = "paused" },
			valid:  false,
		},
		{
			name:   "negative limit",
			mutate: func(u *models.User) { u.Subscription.Limits.DailyRequests = -1 },
			valid:  false,
		},
		{
			name:   "updated before created",
			mutate: func(u *models.User) { u.UpdatedAt = u.CreatedAt.Add(-time.Hour) },
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := validTestUser()
			tt.mutate(u)
			res := ValidateUser(u)
			assert.Equal(t, tt.valid, res.Valid)
			if !tt.valid {
				assert.NotEmpty(t, res.Errors)
			}
		})
	}
}

func TestValidateUserNil(t *testing.T) {
	res := ValidateUser(nil)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)
}

func TestValidateUsage(t *testing.T) {
	valid := func() *models.Usage {
		u := models.NewUsage("user-1", "2025-01-10")
		u.RequestCount = 5
		return u
	}

	tests := []struct {
		name   string
		mutate func(*models.Usage)
		valid  bool
	}{
		{
			name:   "valid usage",
			mutate: func(u *models.Usage) {},
			valid:  true,
		},
		{
			name:   "missing user id",
			mutate: func(u *models.Usage) { u.UserID = "" },
			valid:  false,
		},
		{
			name:   "bad date format",
			mutate: func(u *models.Usage) { u.Date = "10/01/2025" },
			valid:  false,
		},
		{
			name:   "month not prefix of date",
			mutate: func(u *models.Usage) { u.Month = "2025-02" },
			valid:  false,
		},
		{
			name:   "negative counter",
			mutate: func(u *models.Usage) { u.RequestCount = -5 },
			valid:  false,
		},
		{
			name:   "negative api call count",
			mutate: func(u *models.Usage) { u.APICallCounts = map[string]int{"openai": -1} },
			valid:  false,
		},
		{
			name:   "negative response time",
			mutate: func(u *models.Usage) { u.AvgResponseTimeMs = -0.5 },
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := valid()
			tt.mutate(u)
			res := ValidateUsage(u)
			assert.Equal(t, tt.valid, res.Valid)
		})
	}
}

func TestValidateUsageNil(t *testing.T) {
	res := ValidateUsage(nil)
	assert.False(t, res.Valid)
}
