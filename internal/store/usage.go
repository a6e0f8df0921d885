package store

import (
	"context"
	"time"

	"github.com/promptforge/promptstore/pkg/models"
)

// monthRecord is the on-disk shape of usage/<userID>-<YYYY-MM>.json:
// every day of the month the user was active, keyed by date. Days merge
// in place; the file is rewritten whole under its lock.
type monthRecord struct {
	UserID string                   `json:"user_id"`
	Month  string                   `json:"month"`
	Days   map[string]*models.Usage `json:"days"`
}

func usageKey(userID, month string) string {
	return userID + "-" + month
}

func cloneUsage(u *models.Usage) *models.Usage {
	if u == nil {
		return nil
	}
	cp := *u
	if u.APICallCounts != nil {
		cp.APICallCounts = make(map[string]int, len(u.APICallCounts))
		for k, v := range u.APICallCounts {
			cp.APICallCounts[k] = v
		}
	}
	return &cp
}

func cloneMonth(m *monthRecord) *monthRecord {
	cp := &monthRecord{
		UserID: m.UserID,
		Month:  m.Month,
		Days:   make(map[string]*models.Usage, len(m.Days)),
	}
	for date, day := range m.Days {
		cp.Days[date] = cloneUsage(day)
	}
	return cp
}

// readMonth loads a user's month file, via cache; (nil, nil) when absent.
// Cache misses read and populate under the month file's lock so a
// concurrent writer's fresher record is never overwritten with old bytes.
func (s *Store) readMonth(ctx context.Context, userID, month string) (*monthRecord, error) {
	key := usageKey(userID, month)
	if cached, ok := s.usage.get(key); ok {
		return cloneMonth(cached), nil
	}

	path := s.paths.usageFile(userID, month)
	lock, err := acquireLock(ctx, s.paths.lockFile(path), s.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	record, err := s.readMonthLocked(userID, month)
	if err != nil || record == nil {
		return nil, err
	}
	s.usage.set(key, cloneMonth(record))
	return record, nil
}

// readMonthLocked re-reads the month file bypassing the cache. Used
// inside the write lock so concurrent merges see each other's writes.
func (s *Store) readMonthLocked(userID, month string) (*monthRecord, error) {
	payload, err := safeReadFile(s.paths.usageFile(userID, month))
	if err != nil || payload == nil {
		return nil, err
	}
	var record monthRecord
	if err := s.decode(payload, &record); err != nil {
		return nil, newError(KindIO, "readUsage", usageKey(userID, month), err)
	}
	if record.Days == nil {
		record.Days = make(map[string]*models.Usage)
	}
	return &record, nil
}

// UpdateUsage merges a delta into the user's usage for the delta's date
// (today when unset). The first call for a date creates the record;
// later calls add counters field-wise. The read-merge-write runs under
// the month file's lock, so concurrent deltas for the same day sum.
func (s *Store) UpdateUsage(ctx context.Context, userID string, delta models.UsageDelta) (usage *models.Usage, err error) {
	defer func(start time.Time) { s.observe("updateUsage", userID, start, err) }(time.Now())

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, newError(KindUserNotFound, "updateUsage", userID, nil)
	}

	date := delta.Date
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	month := models.MonthFromDate(date)
	path := s.paths.usageFile(userID, month)

	lock, err := acquireLock(ctx, s.paths.lockFile(path), s.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	record, err := s.readMonthLocked(userID, month)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &monthRecord{
			UserID: userID,
			Month:  month,
			Days:   make(map[string]*models.Usage),
		}
	}

	day, ok := record.Days[date]
	if !ok {
		day = models.NewUsage(userID, date)
		record.Days[date] = day
	}
	day.Merge(delta)

	if res := ValidateUsage(day); !res.Valid {
		return nil, newError(KindValidation, "updateUsage", userID, validationErr(res))
	}

	payload, err := s.encode(record)
	if err != nil {
		return nil, newError(KindIO, "updateUsage", userID, err)
	}
	if err := atomicWrite(path, payload); err != nil {
		return nil, err
	}

	s.usage.set(usageKey(userID, month), cloneMonth(record))
	return cloneUsage(day), nil
}

// GetUsage returns the user's usage record for one date, or nil when the
// user was not active that day.
func (s *Store) GetUsage(ctx context.Context, userID, date string) (usage *models.Usage, err error) {
	defer func(start time.Time) { s.observe("getUsage", userID, start, err) }(time.Now())

	record, err := s.readMonth(ctx, userID, models.MonthFromDate(date))
	if err != nil || record == nil {
		return nil, err
	}
	return cloneUsage(record.Days[date]), nil
}

// GetMonthlyUsageSummary aggregates the user's per-day records for one
// month and computes remaining quota against the user's current limits.
// Remaining values clamp at zero, never negative.
func (s *Store) GetMonthlyUsageSummary(ctx context.Context, userID, month string) (summary *models.MonthlyUsageSummary, err error) {
	defer func(start time.Time) { s.observe("getMonthlyUsageSummary", userID, start, err) }(time.Now())

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, newError(KindUserNotFound, "getMonthlyUsageSummary", userID, nil)
	}

	summary = &models.MonthlyUsageSummary{
		UserID:        userID,
		Month:         month,
		APICallCounts: make(map[string]int),
	}

	record, err := s.readMonth(ctx, userID, month)
	if err != nil {
		return nil, err
	}

	today := time.Now().UTC().Format("2006-01-02")
	todayRequests, todayPrompts := 0, 0

	if record != nil {
		for date, day := range record.Days {
			summary.TotalRequests += day.RequestCount
			summary.TotalTokens += day.TokenCount
			summary.TotalPrompts += day.PromptsGenerated
			summary.TotalDocuments += day.DocumentsProcessed
			summary.TotalErrors += day.ErrorCount
			summary.DaysActive++
			if day.RequestCount > summary.PeakDailyRequests {
				summary.PeakDailyRequests = day.RequestCount
			}
			for api, n := range day.APICallCounts {
				summary.APICallCounts[api] += n
			}
			if date == today {
				todayRequests = day.RequestCount
				todayPrompts = day.PromptsGenerated
			}
		}
	}

	if summary.DaysActive > 0 {
		summary.AvgDailyRequests = float64(summary.TotalRequests) / float64(summary.DaysActive)
	}

	limits := user.Subscription.Limits
	summary.RemainingQuota = models.RemainingQuota{
		MonthlyRequests: clampZero(limits.MonthlyRequests - summary.TotalRequests),
		DailyRequests:   clampZero(limits.DailyRequests - todayRequests),
		PromptsPerDay:   clampZero(limits.MaxPromptsPerDay - todayPrompts),
	}
	return summary, nil
}

func clampZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
