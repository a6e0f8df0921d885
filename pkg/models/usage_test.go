package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonthFromDate(t *testing.T) {
	assert.Equal(t, "2025-03", MonthFromDate("2025-03-15"))
	assert.Equal(t, "2025-03", MonthFromDate("2025-03"))
	assert.Equal(t, "bad", MonthFromDate("bad"))
	assert.Equal(t, "", MonthFromDate(""))
}

func TestUsageMergeCounters(t *testing.T) {
	u := NewUsage("u1", "2025-03-15")
	u.Merge(UsageDelta{
		RequestCount:       3,
		TokenCount:         900,
		PromptsGenerated:   2,
		DocumentsProcessed: 1,
		ErrorCount:         1,
		APICallCounts:      map[string]int{"openai": 3},
	})
	u.Merge(UsageDelta{
		RequestCount:  2,
		APICallCounts: map[string]int{"openai": 1, "anthropic": 2},
	})

	assert.Equal(t, 5, u.RequestCount)
	assert.Equal(t, 900, u.TokenCount)
	assert.Equal(t, 2, u.PromptsGenerated)
	assert.Equal(t, 1, u.DocumentsProcessed)
	assert.Equal(t, 1, u.ErrorCount)
	assert.Equal(t, map[string]int{"openai": 4, "anthropic": 2}, u.APICallCounts)
}

func TestUsageMergeWeightsResponseTime(t *testing.T) {
	u := NewUsage("u1", "2025-03-15")
	u.Merge(UsageDelta{RequestCount: 1, AvgResponseTimeMs: 100})
	u.Merge(UsageDelta{RequestCount: 3, AvgResponseTimeMs: 300})

	// (100*1 + 300*3) / 4
	assert.InDelta(t, 250, u.AvgResponseTimeMs, 0.001)
}

func TestUsageMergeZeroRequestsKeepsAverage(t *testing.T) {
	u := NewUsage("u1", "2025-03-15")
	u.Merge(UsageDelta{RequestCount: 2, AvgResponseTimeMs: 150})
	u.Merge(UsageDelta{TokenCount: 50})

	assert.InDelta(t, 150, u.AvgResponseTimeMs, 0.001)
	assert.Equal(t, 50, u.TokenCount)
}

func TestUsageMergeIntoNilAPIMap(t *testing.T) {
	u := &Usage{UserID: "u1", Date: "2025-03-15", Month: "2025-03"}
	u.Merge(UsageDelta{APICallCounts: map[string]int{"openai": 1}})

	assert.Equal(t, map[string]int{"openai": 1}, u.APICallCounts)
}
