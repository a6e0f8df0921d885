package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/promptstore/internal/config"
	"github.com/promptforge/promptstore/internal/logging"
	"github.com/promptforge/promptstore/pkg/models"
)

func testConfig(t *testing.T) config.StorageConfig {
	t.Helper()
	root := t.TempDir()
	return config.StorageConfig{
		DataPath:    filepath.Join(root, "data"),
		BackupPath:  filepath.Join(root, "data", "backups"),
		EnableCache: true,
		CacheSize:   100,
		LockTimeout: 2 * time.Second,
	}
}

func newTestStore(t *testing.T, mutate ...func(*config.StorageConfig)) *Store {
	t.Helper()
	cfg := testConfig(t)
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := New(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	return s
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.StorageConfig{}, logging.NewNopLogger())
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestCreateThenFetch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := models.NewUser("a@x.com", "A", "free")
	require.NoError(t, s.SaveUser(ctx, user))

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, models.PlanFree, got.Subscription.Plan)
	assert.Equal(t, 50, got.Subscription.Limits.DailyRequests)
	assert.True(t, got.IsActive)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestGetUserNotFoundReturnsNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetUser(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := models.NewUser("roundtrip@x.com", "Round Trip", "pro")
	user.EmailVerified = true
	user.Preferences.Theme = "dark"
	require.NoError(t, s.SaveUser(ctx, user))

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	// Server stamps timestamps; everything else round-trips
	got.CreatedAt = user.CreatedAt
	got.UpdatedAt = user.UpdatedAt
	assert.Equal(t, user, got)
}

func TestSaveUserDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := models.NewUser("dup@x.com", "A", "free")
	require.NoError(t, s.SaveUser(ctx, a))

	b := models.NewUser("dup@x.com", "B", "free")
	err := s.SaveUser(ctx, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserExists)
	assert.Equal(t, KindUserExists, KindOf(err))

	// The existing record is unchanged
	got, err := s.GetUser(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "A", got.Name)

	// And B was never written
	gotB, err := s.GetUser(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, gotB)
}

func TestSaveUserEmailCaseNormalized(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := models.NewUser("MiXeD@X.com", "Mixed", "free")
	require.NoError(t, s.SaveUser(ctx, user))

	got, err := s.GetUserByEmail(ctx, "mixed@x.COM")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "mixed@x.com", got.Email)
}

func TestSaveUserInvalidEmail(t *testing.T) {
	s := newTestStore(t)

	user := models.NewUser("not-an-email", "Bad", "free")
	err := s.SaveUser(context.Background(), user)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSaveUserInvalidRecordWithTakenEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, models.NewUser("taken@x.com", "A", "free")))

	// Invalid record whose email also collides: the validation verdict
	// wins over the uniqueness conflict
	b := models.NewUser("taken@x.com", "B", "free")
	b.Subscription.Plan = "platinum"
	err := s.SaveUser(ctx, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrUserExists)
}

func TestConcurrentReadDoesNotCacheStaleUser(t *testing.T) {
	// A read that misses the cache must not install older bytes over a
	// record a concurrent save committed in between; the cache would
	// then serve the stale record forever.
	s := newTestStore(t)
	ctx := context.Background()

	user := models.NewUser("stale@x.com", "v0", "free")
	require.NoError(t, s.SaveUser(ctx, user))

	for i := 1; i <= 100; i++ {
		s.users.delete(user.ID)

		next := cloneUser(user)
		next.Name = fmt.Sprintf("v%d", i)

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.GetUser(ctx, user.ID); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if err := s.SaveUser(ctx, next); err != nil {
				errs <- err
			}
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("iteration %d: %v", i, err)
		}

		got, err := s.GetUser(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		onDisk, err := s.readUserFile(user.ID)
		require.NoError(t, err)
		require.Equal(t, onDisk.Name, got.Name, "iteration %d: cache diverged from disk", i)
	}
}

func TestSaveUserPreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := models.NewUser("stamp@x.com", "Stamp", "free")
	require.NoError(t, s.SaveUser(ctx, user))
	created := user.CreatedAt

	// Re-save with a bogus creation time; the stored one wins
	user.CreatedAt = created.Add(48 * time.Hour)
	user.Name = "Stamp 2"
	require.NoError(t, s.SaveUser(ctx, user))

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Equal(t, "Stamp 2", got.Name)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestUpdateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := models.NewUser("update@x.com", "Before", "free")
	require.NoError(t, s.SaveUser(ctx, user))

	name := "After"
	verified := true
	updated, err := s.UpdateUser(ctx, user.ID, UserUpdate{Name: &name, EmailVerified: &verified})
	require.NoError(t, err)

	assert.Equal(t, "After", updated.Name)
	assert.True(t, updated.EmailVerified)
	assert.Equal(t, user.ID, updated.ID)
	assert.Equal(t, "update@x.com", updated.Email)

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", got.Name)
}

func TestUpdateUserNotFound(t *testing.T) {
	s := newTestStore(t)

	name := "Nobody"
	_, err := s.UpdateUser(context.Background(), "missing", UserUpdate{Name: &name})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeleteUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := models.NewUser("gone@x.com", "Gone", "free")
	require.NoError(t, s.SaveUser(ctx, user))

	// Give the user some usage so the cascade has something to remove
	_, err := s.UpdateUsage(ctx, user.ID, models.UsageDelta{Date: "2025-01-10", RequestCount: 5})
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, user.ID))

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Usage files went with the user
	months, err := s.usageMonthsFor(user.ID)
	require.NoError(t, err)
	assert.Empty(t, months)
}

func TestDeleteUserNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.DeleteUser(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestListUsersPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	emails := []string{"p1@x.com", "p2@x.com", "p3@x.com", "p4@x.com", "p5@x.com"}
	for _, email := range emails {
		require.NoError(t, s.SaveUser(ctx, models.NewUser(email, "", "free")))
	}

	page1, err := s.ListUsers(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page1.Total)
	assert.Equal(t, 3, page1.TotalPages)
	assert.Len(t, page1.Users, 2)

	page3, err := s.ListUsers(ctx, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page3.Users, 1)

	page4, err := s.ListUsers(ctx, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, page4.Users)

	// No duplicates across pages
	seen := make(map[string]bool)
	for page := 1; page <= 3; page++ {
		result, err := s.ListUsers(ctx, page, 2)
		require.NoError(t, err)
		for _, u := range result.Users {
			assert.False(t, seen[u.ID], "user %s appeared twice", u.ID)
			seen[u.ID] = true
		}
	}
	assert.Len(t, seen, 5)
}

func TestSearchUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, models.NewUser("alice@lawfirm.com", "Alice Attorney", "pro")))
	require.NoError(t, s.SaveUser(ctx, models.NewUser("bob@realty.com", "Bob Broker", "free")))

	matches, err := s.SearchUsers(ctx, "lawfirm")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "alice@lawfirm.com", matches[0].Email)

	matches, err = s.SearchUsers(ctx, "BROKER")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "bob@realty.com", matches[0].Email)

	matches, err = s.SearchUsers(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCacheTransparency(t *testing.T) {
	// The same operation sequence must produce identical results with
	// the cache on and off
	run := func(s *Store) (*models.User, *models.Usage) {
		ctx := context.Background()
		user := models.NewUser("parity@x.com", "Parity", "pro")
		require.NoError(t, s.SaveUser(ctx, user))

		_, err := s.UpdateUsage(ctx, user.ID, models.UsageDelta{Date: "2025-02-01", RequestCount: 7})
		require.NoError(t, err)

		// Read twice so the cached path is actually exercised
		_, err = s.GetUser(ctx, user.ID)
		require.NoError(t, err)
		gotUser, err := s.GetUser(ctx, user.ID)
		require.NoError(t, err)

		_, err = s.GetUsage(ctx, user.ID, "2025-02-01")
		require.NoError(t, err)
		gotUsage, err := s.GetUsage(ctx, user.ID, "2025-02-01")
		require.NoError(t, err)
		return gotUser, gotUsage
	}

	cached := newTestStore(t)
	uncached := newTestStore(t, func(c *config.StorageConfig) { c.EnableCache = false })

	userA, usageA := run(cached)
	userB, usageB := run(uncached)

	userA.ID, userB.ID = "", ""
	userA.CreatedAt, userB.CreatedAt = time.Time{}, time.Time{}
	userA.UpdatedAt, userB.UpdatedAt = time.Time{}, time.Time{}
	userA.Subscription.StartDate, userB.Subscription.StartDate = time.Time{}, time.Time{}
	assert.Equal(t, userA, userB)

	usageA.UserID, usageB.UserID = "", ""
	assert.Equal(t, usageA, usageB)
}

func TestCallerCannotMutateCachedRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := models.NewUser("isolated@x.com", "Original", "free")
	require.NoError(t, s.SaveUser(ctx, user))

	first, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	first.Name = "Mutated"

	second, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", second.Name)
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	s := newTestStore(t, func(c *config.StorageConfig) { c.EncryptionKey = "correct horse battery staple" })
	ctx := context.Background()

	user := models.NewUser("secret@x.com", "Secret", "enterprise")
	require.NoError(t, s.SaveUser(ctx, user))

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "secret@x.com", got.Email)

	// The raw file must not contain the plaintext email
	raw, err := safeReadFile(s.paths.userFile(user.ID))
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.NotContains(t, string(raw), "secret@x.com")
}

func TestWrongKeyFailsRead(t *testing.T) {
	cfg := testConfig(t)
	cfg.EncryptionKey = "first key"

	s1, err := New(cfg, logging.NewNopLogger())
	require.NoError(t, err)

	ctx := context.Background()
	user := models.NewUser("locked@x.com", "Locked", "free")
	require.NoError(t, s1.SaveUser(ctx, user))

	cfg.EncryptionKey = "second key"
	s2, err := New(cfg, logging.NewNopLogger())
	require.NoError(t, err)

	_, err = s2.GetUser(ctx, user.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
}
