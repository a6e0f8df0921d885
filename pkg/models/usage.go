package models

// Usage represents one user's consumption for a single day.
// Records are grouped by month on disk: one file per (user, YYYY-MM).
type Usage struct {
	UserID             string         `json:"user_id" validate:"required"`
	Date               string         `json:"date" validate:"required,datetime=2006-01-02"`
	Month              string         `json:"month" validate:"required"`
	RequestCount       int            `json:"request_count" validate:"gte=0"`
	TokenCount         int            `json:"token_count" validate:"gte=0"`
	PromptsGenerated   int            `json:"prompts_generated" validate:"gte=0"`
	DocumentsProcessed int            `json:"documents_processed" validate:"gte=0"`
	APICallCounts      map[string]int `json:"api_call_counts,omitempty"`
	ErrorCount         int            `json:"error_count" validate:"gte=0"`
	AvgResponseTimeMs  float64        `json:"avg_response_time_ms" validate:"gte=0"`
}

// UsageDelta carries the increments applied to a day's usage record.
// Counter fields add onto the stored record; AvgResponseTimeMs is folded
// into a request-weighted average.
type UsageDelta struct {
	Date               string         `json:"date"`
	RequestCount       int            `json:"request_count"`
	TokenCount         int            `json:"token_count"`
	PromptsGenerated   int            `json:"prompts_generated"`
	DocumentsProcessed int            `json:"documents_processed"`
	APICallCounts      map[string]int `json:"api_call_counts,omitempty"`
	ErrorCount         int            `json:"error_count"`
	AvgResponseTimeMs  float64        `json:"avg_response_time_ms"`
}

// MonthFromDate derives the YYYY-MM month key from a YYYY-MM-DD date
func MonthFromDate(date string) string {
	if len(date) < 7 {
		return date
	}
	return date[:7]
}

// NewUsage creates an empty usage record for a user and date. The
// per-API map is allocated lazily by Merge so an empty one never hits
// the disk.
func NewUsage(userID, date string) *Usage {
	return &Usage{
		UserID: userID,
		Date:   date,
		Month:  MonthFromDate(date),
	}
}

// Merge folds a delta into the record. Counters add, per-API counts add
// per key, and the response-time average is re-weighted by request counts.
func (u *Usage) Merge(delta UsageDelta) {
	prevRequests := u.RequestCount

	u.RequestCount += delta.RequestCount
	u.TokenCount += delta.TokenCount
	u.PromptsGenerated += delta.PromptsGenerated
	u.DocumentsProcessed += delta.DocumentsProcessed
	u.ErrorCount += delta.ErrorCount

	if len(delta.APICallCounts) > 0 {
		if u.APICallCounts == nil {
			u.APICallCounts = make(map[string]int)
		}
		for api, n := range delta.APICallCounts {
			u.APICallCounts[api] += n
		}
	}

	if u.RequestCount > 0 {
		u.AvgResponseTimeMs = (u.AvgResponseTimeMs*float64(prevRequests) +
			delta.AvgResponseTimeMs*float64(delta.RequestCount)) / float64(u.RequestCount)
	}
}

// RemainingQuota reports the unused portion of a user's limits
type RemainingQuota struct {
	MonthlyRequests int `json:"monthly_requests"`
	DailyRequests   int `json:"daily_requests"`
	PromptsPerDay   int `json:"prompts_per_day"`
}

// MonthlyUsageSummary aggregates a user's usage for one month.
// It is derived on demand and never persisted.
type MonthlyUsageSummary struct {
	UserID              string         `json:"user_id"`
	Month               string         `json:"month"`
	TotalRequests       int            `json:"total_requests"`
	TotalTokens         int            `json:"total_tokens"`
	TotalPrompts        int            `json:"total_prompts"`
	TotalDocuments      int            `json:"total_documents"`
	TotalErrors         int            `json:"total_errors"`
	DaysActive          int            `json:"days_active"`
	AvgDailyRequests    float64        `json:"avg_daily_requests"`
	PeakDailyRequests   int            `json:"peak_daily_requests"`
	APICallCounts       map[string]int `json:"api_call_counts,omitempty"`
	RemainingQuota      RemainingQuota `json:"remaining_quota"`
}
