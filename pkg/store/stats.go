package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod is returned for an unknown stats period.
var ErrInvalidPeriod = errors.New("invalid stats period")

// Period is a stats bucket granularity.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// Periods lists every period in ascending granularity.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly}

// ParsePeriod validates a period name.
func ParsePeriod(s string) (Period, error) {
	for _, p := range Periods {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// Summary aggregates query counts around now.
type Summary struct {
	Today       int64     `json:"today"`
	ThisWeek    int64     `json:"thisWeek"`
	ThisMonth   int64     `json:"thisMonth"`
	ThisYear    int64     `json:"thisYear"`
	Total       int64     `json:"total"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// ChartPoint is one stats bucket.
type ChartPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// WeekNumber returns the week of the year for t. Weeks start on Sunday and
// week 1 is the one containing January 1st.
func WeekNumber(t time.Time) int {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	days := t.YearDay() - 1
	return (days + int(jan1.Weekday()) + 7) / 7
}

// PeriodKeys returns the bucket key of every period for t.
func PeriodKeys(t time.Time) map[Period]string {
	return map[Period]string{
		PeriodDaily:   t.Format("2006-01-02"),
		PeriodWeekly:  fmt.Sprintf("%d-W%02d", t.Year(), WeekNumber(t)),
		PeriodMonthly: t.Format("2006-01"),
		PeriodYearly:  t.Format("2006"),
	}
}

// RecordQuery adds count to the current daily, weekly, monthly and yearly
// buckets in one transaction.
func (s *Store) RecordQuery(ctx context.Context, count int) error {
	if count <= 0 {
		return fmt.Errorf("count must be positive (got %d)", count)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stats transaction: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO stats (date, period_type, count, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(date, period_type) DO UPDATE SET
			count = stats.count + excluded.count,
			updated_at = CURRENT_TIMESTAMP`

	keys := PeriodKeys(s.now())
	for _, period := range Periods {
		if _, err := tx.ExecContext(ctx, upsert, keys[period], string(period), count); err != nil {
			return fmt.Errorf("upsert %s stats: %w", period, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stats: %w", err)
	}
	return nil
}

// Summary returns the counts of the current buckets and the all-time total.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	now := s.now()
	keys := PeriodKeys(now)

	summary := Summary{LastUpdated: now.UTC()}
	targets := map[Period]*int64{
		PeriodDaily:   &summary.Today,
		PeriodWeekly:  &summary.ThisWeek,
		PeriodMonthly: &summary.ThisMonth,
		PeriodYearly:  &summary.ThisYear,
	}

	for _, period := range Periods {
		err := s.db.QueryRowContext(ctx,
			`SELECT count FROM stats WHERE date = ? AND period_type = ?`,
			keys[period], string(period),
		).Scan(targets[period])
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Summary{}, fmt.Errorf("read %s stats: %w", period, err)
		}
	}

	var total sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT SUM(count) FROM stats WHERE period_type = ?`, string(PeriodDaily),
	).Scan(&total); err != nil {
		return Summary{}, fmt.Errorf("read total: %w", err)
	}
	summary.Total = total.Int64

	return summary, nil
}

// ChartData returns the latest limit buckets of period, oldest first.
func (s *Store) ChartData(ctx context.Context, period Period, limit int) ([]ChartPoint, error) {
	if _, err := ParsePeriod(string(period)); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 30
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT date, count FROM stats WHERE period_type = ? ORDER BY date DESC LIMIT ?`,
		string(period), limit)
	if err != nil {
		return nil, fmt.Errorf("query chart data: %w", err)
	}
	defer rows.Close()

	var points []ChartPoint
	for rows.Next() {
		var p ChartPoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, fmt.Errorf("scan chart data: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chart data: %w", err)
	}

	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}
