// Package analytics computes the admin dashboard counters straight from the
// primary database.
package analytics

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
)

const (
	dateLayout = "2006-01-02"

	DefaultDays = 30
	MaxDays     = 366
)

// Service provides dashboard reports.
type Service interface {
	// Query returns membership, catalog and watch-time figures for req.
	Query(ctx context.Context, req QueryRequest) (*Report, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds an analytics service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("analytics repo required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// LastDays builds a request covering the trailing n days including today.
// Out-of-range values fall back to DefaultDays or clamp to MaxDays.
func LastDays(n int, now time.Time) QueryRequest {
	if n <= 0 {
		n = DefaultDays
	}
	if n > MaxDays {
		n = MaxDays
	}
	end := now.UTC().Truncate(24 * time.Hour)
	return QueryRequest{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}

func (s *service) Query(ctx context.Context, req QueryRequest) (*Report, error) {
	if req.Start.IsZero() || req.End.IsZero() {
		req = LastDays(DefaultDays, s.now())
	}
	start := req.Start.UTC().Truncate(24 * time.Hour)
	end := req.End.UTC().Truncate(24 * time.Hour)
	if end.Before(start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end must not be before start")
	}
	if end.Sub(start) >= MaxDays*24*time.Hour {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("window exceeds %d days", MaxDays))
	}

	report := &Report{Start: start.Format(dateLayout), End: end.Format(dateLayout)}

	statuses, err := s.repo.UsersByStatus(ctx)
	if err != nil {
		return nil, wrap(err, "count users")
	}
	report.UsersByStatus = make([]LabelValue, 0, len(statuses))
	for _, row := range statuses {
		report.UsersByStatus = append(report.UsersByStatus, LabelValue{Label: row.Status, Value: row.Total})
		report.TotalUsers += row.Total
	}

	if report.Admins, err = s.repo.CountAdmins(ctx); err != nil {
		return nil, wrap(err, "count admins")
	}
	if report.LinkedDiscord, err = s.repo.CountLinkedDiscord(ctx); err != nil {
		return nil, wrap(err, "count linked members")
	}
	if report.PublishedVideos, err = s.repo.CountVideos(ctx, true); err != nil {
		return nil, wrap(err, "count videos")
	}
	if report.DraftVideos, err = s.repo.CountVideos(ctx, false); err != nil {
		return nil, wrap(err, "count videos")
	}

	days, err := s.repo.SecondsByDay(ctx, report.Start, report.End)
	if err != nil {
		return nil, wrap(err, "sum watch time")
	}
	report.MinutesWatched, report.TotalMinutes = fillSeries(start, end, days)

	if report.ActiveLearners, err = s.repo.CountActiveLearners(ctx, report.Start, report.End); err != nil {
		return nil, wrap(err, "count learners")
	}
	return report, nil
}

// fillSeries returns one point per day in [start, end], zero-filled.
func fillSeries(start, end time.Time, rows []dayTotal) ([]TimeSeriesPoint, int64) {
	seconds := make(map[string]int64, len(rows))
	for _, row := range rows {
		seconds[row.LogDate] = row.Seconds
	}
	var (
		series []TimeSeriesPoint
		total  int64
	)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(dateLayout)
		minutes := seconds[key] / 60
		series = append(series, TimeSeriesPoint{Date: key, Value: minutes})
		total += minutes
	}
	return series, total
}

func wrap(err error, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
