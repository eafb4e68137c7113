package analytics

import "time"

// QueryRequest selects the reporting window. Start and End are UTC dates,
// both inclusive.
type QueryRequest struct {
	Start time.Time
	End   time.Time
}

// TimeSeriesPoint describes a single date/value pair.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// LabelValue is one bucket of a breakdown.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// Report is the admin dashboard summary.
type Report struct {
	Start           string            `json:"start"`
	End             string            `json:"end"`
	TotalUsers      int64             `json:"total_users"`
	UsersByStatus   []LabelValue      `json:"users_by_status"`
	Admins          int64             `json:"admins"`
	LinkedDiscord   int64             `json:"linked_discord"`
	PublishedVideos int64             `json:"published_videos"`
	DraftVideos     int64             `json:"draft_videos"`
	MinutesWatched  []TimeSeriesPoint `json:"minutes_watched"`
	TotalMinutes    int64             `json:"total_minutes"`
	ActiveLearners  int64             `json:"active_learners"`
}
