// Package store implements the file-backed persistence engine behind the
// prompt generator platform: user records, per-day usage accounting,
// subscription state, and backup snapshots, all as JSON files under a
// configured data root. There is no database engine; durability comes
// from temp-file-plus-rename writes and advisory per-file locks.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/promptforge/promptstore/internal/config"
	"github.com/promptforge/promptstore/internal/logging"
	"github.com/promptforge/promptstore/internal/metrics"
	"github.com/promptforge/promptstore/pkg/models"
)

// Uploader pushes a finished backup snapshot to an off-site target.
// Upload failures never fail the local backup.
type Uploader interface {
	UploadBackup(ctx context.Context, backupID, dir string) error
}

// Store is the sole entry point to the persisted data. Construct it with
// New and share the one instance; it owns the on-disk layout and the
// process-local caches.
type Store struct {
	cfg      config.StorageConfig
	paths    paths
	log      *logging.Logger
	cryptor  *cryptor
	users    *recordCache[*models.User]
	usage    *recordCache[*monthRecord]
	uploader Uploader
}

// Option configures a Store at construction time
type Option func(*Store)

// WithUploader attaches an off-site backup uploader
func WithUploader(u Uploader) Option {
	return func(s *Store) { s.uploader = u }
}

// New creates a Store over the configured data root, creating the
// directory layout if needed.
func New(cfg config.StorageConfig, log *logging.Logger, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, newError(KindValidation, "new", "", err)
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	s := &Store{
		cfg:   cfg,
		paths: newPaths(cfg),
		log:   log,
	}

	if cfg.EncryptionKey != "" {
		c, err := newCryptor(cfg.EncryptionKey)
		if err != nil {
			return nil, newError(KindIO, "new", "", err)
		}
		s.cryptor = c
	}

	var err error
	if s.users, err = newRecordCache[*models.User]("users", cfg.CacheSize, cfg.EnableCache); err != nil {
		return nil, newError(KindIO, "new", "", err)
	}
	if s.usage, err = newRecordCache[*monthRecord]("usage", cfg.CacheSize, cfg.EnableCache); err != nil {
		return nil, newError(KindIO, "new", "", err)
	}

	for _, dir := range []string{s.paths.usersDir(), s.paths.usageDir(), s.paths.locksDir(), cfg.BackupPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, newError(KindIO, "new", dir, err)
		}
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// observe records the outcome of one public operation
func (s *Store) observe(op, id string, start time.Time, err error) {
	elapsed := time.Since(start)
	metrics.RecordOperation(op, err, elapsed.Seconds())
	s.log.LogStoreOperation(op, id, elapsed, err)
}

// encode serializes and, when a key is configured, encrypts a record
func (s *Store) encode(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	if s.cryptor != nil {
		return s.cryptor.encrypt(data)
	}
	return data, nil
}

// decode reverses encode into dest. Decryption failure is fatal for the
// record; there is no plaintext fallback.
func (s *Store) decode(payload []byte, dest interface{}) error {
	if s.cryptor != nil {
		plain, err := s.cryptor.decrypt(payload)
		if err != nil {
			return err
		}
		payload = plain
	}
	return json.Unmarshal(payload, dest)
}

// writeFile serializes v and writes it under the per-path lock. The
// committed callback runs after the write lands but before the lock is
// released; cache installs go there so a concurrent reader can never
// overwrite them with older bytes.
func (s *Store) writeFile(ctx context.Context, op, path string, v interface{}, committed func()) error {
	payload, err := s.encode(v)
	if err != nil {
		return newError(KindIO, op, path, err)
	}

	lockStart := time.Now()
	lock, err := acquireLock(ctx, s.paths.lockFile(path), s.cfg.LockTimeout)
	metrics.LockWaitDuration.Observe(time.Since(lockStart).Seconds())
	if err != nil {
		if KindOf(err) == KindLockTimeout {
			metrics.LockTimeoutsTotal.Inc()
		}
		return err
	}
	defer lock.release()

	if err := atomicWrite(path, payload); err != nil {
		return err
	}
	if committed != nil {
		committed()
	}
	return nil
}

// readUserFile loads and decodes one user file; (nil, nil) when absent
func (s *Store) readUserFile(id string) (*models.User, error) {
	payload, err := safeReadFile(s.paths.userFile(id))
	if err != nil || payload == nil {
		return nil, err
	}
	var user models.User
	if err := s.decode(payload, &user); err != nil {
		return nil, newError(KindIO, "readUser", id, err)
	}
	return &user, nil
}

// cloneUser keeps cached records isolated from caller mutation
func cloneUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.Subscription.EndDate != nil {
		end := *u.Subscription.EndDate
		cp.Subscription.EndDate = &end
	}
	return &cp
}

// GetUser returns the user with the given id, or nil when no such record
// exists. Absence is not an error.
func (s *Store) GetUser(ctx context.Context, id string) (user *models.User, err error) {
	defer func(start time.Time) { s.observe("getUser", id, start, err) }(time.Now())

	if cached, ok := s.users.get(id); ok {
		return cloneUser(cached), nil
	}

	// Populate under the file's write lock. Reading and caching outside
	// it would let old bytes overwrite a newer record a concurrent save
	// committed in between, and the cache would stay stale forever.
	lock, err := acquireLock(ctx, s.paths.lockFile(s.paths.userFile(id)), s.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	loaded, err := s.readUserFile(id)
	if err != nil || loaded == nil {
		return nil, err
	}
	s.users.set(id, loaded)
	return cloneUser(loaded), nil
}

// SaveUser validates and persists a user record. Creating a user whose
// email belongs to a different id fails with USER_ALREADY_EXISTS. On an
// existing id the creation timestamp is preserved; the update timestamp
// is always refreshed.
func (s *Store) SaveUser(ctx context.Context, user *models.User) (err error) {
	id := ""
	if user != nil {
		id = user.ID
	}
	defer func(start time.Time) { s.observe("saveUser", id, start, err) }(time.Now())

	if user == nil {
		return newError(KindValidation, "saveUser", id, validationErr(ValidateUser(nil)))
	}

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	existing, err := s.readUserFile(user.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if existing != nil {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	// Validate the record as it will be written, timestamps included.
	// Validation verdicts take precedence over the uniqueness check.
	if res := ValidateUser(user); !res.Valid {
		return newError(KindValidation, "saveUser", id, validationErr(res))
	}

	owner, err := s.findUserByEmail(user.Email)
	if err != nil {
		return err
	}
	if owner != nil && owner.ID != user.ID {
		return newError(KindUserExists, "saveUser", user.Email, nil)
	}

	// The cache install rides inside the write lock so it can never be
	// overwritten by a reader holding older bytes
	return s.writeFile(ctx, "saveUser", s.paths.userFile(user.ID), user, func() {
		s.users.set(user.ID, cloneUser(user))
	})
}

// UserUpdate carries the caller-supplied partial fields for UpdateUser.
// Nil fields are left untouched; id and creation time are never
// caller-writable.
type UserUpdate struct {
	Email         *string             `json:"email,omitempty"`
	Name          *string             `json:"name,omitempty"`
	IsActive      *bool               `json:"is_active,omitempty"`
	EmailVerified *bool               `json:"email_verified,omitempty"`
	Preferences   *models.Preferences `json:"preferences,omitempty"`
}

// UpdateUser merges the partial update over the stored record and re-runs
// the save path. Missing id fails with USER_NOT_FOUND.
func (s *Store) UpdateUser(ctx context.Context, id string, update UserUpdate) (user *models.User, err error) {
	defer func(start time.Time) { s.observe("updateUser", id, start, err) }(time.Now())

	current, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, newError(KindUserNotFound, "updateUser", id, nil)
	}

	if update.Email != nil {
		current.Email = *update.Email
	}
	if update.Name != nil {
		current.Name = *update.Name
	}
	if update.IsActive != nil {
		current.IsActive = *update.IsActive
	}
	if update.EmailVerified != nil {
		current.EmailVerified = *update.EmailVerified
	}
	if update.Preferences != nil {
		current.Preferences = *update.Preferences
	}

	if err := s.SaveUser(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// DeleteUser removes the user file and, with it, the user's usage files.
// Missing id fails with USER_NOT_FOUND.
func (s *Store) DeleteUser(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.observe("deleteUser", id, start, err) }(time.Now())

	existing, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return newError(KindUserNotFound, "deleteUser", id, nil)
	}

	// Removal and eviction run under the same lock the read path
	// populates under, so a concurrent miss cannot resurrect the record
	if err := s.removeLocked(ctx, s.paths.userFile(id), func() {
		s.users.delete(id)
	}); err != nil {
		return err
	}

	// Cascade: drop the user's usage files so no orphans are left behind
	months, err := s.usageMonthsFor(id)
	if err != nil {
		return err
	}
	for _, month := range months {
		if err := s.removeLocked(ctx, s.paths.usageFile(id, month), func() {
			s.usage.delete(usageKey(id, month))
		}); err != nil {
			return err
		}
	}
	return nil
}

// removeLocked deletes a data file and runs the eviction callback while
// holding the file's lock
func (s *Store) removeLocked(ctx context.Context, path string, evict func()) error {
	lock, err := acquireLock(ctx, s.paths.lockFile(path), s.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer lock.release()

	if err := removeIfExists(path); err != nil {
		return err
	}
	evict()
	return nil
}

// GetUserByEmail returns the user owning the email, or nil when no user
// does. The lookup is case-insensitive.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (user *models.User, err error) {
	defer func(start time.Time) { s.observe("getUserByEmail", email, start, err) }(time.Now())

	found, err := s.findUserByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	return cloneUser(found), nil
}

// findUserByEmail scans the users directory. Email uniqueness has no
// index; the scan is the source of truth.
func (s *Store) findUserByEmail(email string) (*models.User, error) {
	ids, err := s.listUserIDs()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		user, err := s.readUserFile(id)
		if err != nil {
			return nil, err
		}
		if user != nil && user.Email == email {
			return user, nil
		}
	}
	return nil, nil
}

// listUserIDs enumerates user ids from the directory listing
func (s *Store) listUserIDs() ([]string, error) {
	entries, err := os.ReadDir(s.paths.usersDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, newError(KindIO, "listUsers", s.paths.usersDir(), err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// loadAllUsers decodes every user record, sorted by creation time then id
func (s *Store) loadAllUsers() ([]*models.User, error) {
	ids, err := s.listUserIDs()
	if err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		user, err := s.readUserFile(id)
		if err != nil {
			return nil, err
		}
		if user != nil {
			users = append(users, user)
		}
	}

	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// UserPage is one page of the user listing
type UserPage struct {
	Users      []*models.User `json:"users"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

// ListUsers returns users ordered by creation time, paginated. Pages are
// 1-based; a non-positive limit falls back to 20.
func (s *Store) ListUsers(ctx context.Context, page, limit int) (result *UserPage, err error) {
	defer func(start time.Time) { s.observe("listUsers", "", start, err) }(time.Now())

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	users, err := s.loadAllUsers()
	if err != nil {
		return nil, err
	}

	total := len(users)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	pageUsers := make([]*models.User, 0, end-start)
	for _, u := range users[start:end] {
		pageUsers = append(pageUsers, cloneUser(u))
	}

	return &UserPage{
		Users:      pageUsers,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// SearchUsers matches the query case-insensitively against email and name
func (s *Store) SearchUsers(ctx context.Context, query string) (matches []*models.User, err error) {
	defer func(start time.Time) { s.observe("searchUsers", "", start, err) }(time.Now())

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	users, err := s.loadAllUsers()
	if err != nil {
		return nil, err
	}

	for _, user := range users {
		if strings.Contains(user.Email, query) || strings.Contains(strings.ToLower(user.Name), query) {
			matches = append(matches, cloneUser(user))
		}
	}
	return matches, nil
}

// usageMonthsFor lists the months a user has usage files for
func (s *Store) usageMonthsFor(userID string) ([]string, error) {
	pattern := filepath.Join(s.paths.usageDir(), userID+"-*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, newError(KindIO, "listUsage", userID, err)
	}

	months := make([]string, 0, len(files))
	for _, f := range files {
		base := strings.TrimSuffix(filepath.Base(f), ".json")
		months = append(months, strings.TrimPrefix(base, userID+"-"))
	}
	sort.Strings(months)
	return months, nil
}
