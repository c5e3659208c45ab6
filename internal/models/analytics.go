package models

import "time"

// QueryFrequency is one entry of the top-queries leaderboard.
type QueryFrequency struct {
	Query     string `json:"query"`
	Frequency int    `json:"frequency"`
}

// SearchAnalytics aggregates query activity over a trailing window.
type SearchAnalytics struct {
	PeriodDays          int              `json:"period_days"`
	TotalSearches       int              `json:"total_searches"`
	AvgProcessingTimeMs float64          `json:"avg_processing_time_ms"`
	AvgResultsCount     float64          `json:"avg_results_count"`
	UniqueSessions      int              `json:"unique_sessions"`
	TopQueries          []QueryFrequency `json:"top_queries"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

// IngestSummary aggregates one directory-wide ingestion run.
type IngestSummary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
