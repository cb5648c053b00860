package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timestampLayout is fixed width so text ordering matches time ordering.
const timestampLayout = "2006-01-02 15:04:05.000000"

// Query log statuses.
const (
	QueryStatusSuccess = "success"
	QueryStatusFailed  = "failed"
)

// QueryLog is one provider lookup.
type QueryLog struct {
	ID             int64         `json:"id"`
	TrackingNumber string        `json:"trackingNumber"`
	Status         string        `json:"status"`
	ResponseTime   time.Duration `json:"-"`
	ErrorMessage   string        `json:"errorMessage,omitempty"`
	IPAddress      string        `json:"ipAddress,omitempty"`
	UserAgent      string        `json:"userAgent,omitempty"`
	RequestID      string        `json:"requestId"`
	CreatedAt      time.Time     `json:"timestamp"`

	// ResponseTimeMS mirrors ResponseTime for JSON consumers.
	ResponseTimeMS int64 `json:"responseTime"`
}

// LogQuery appends entry to the query log. A request id is generated when
// entry has none.
func (s *Store) LogQuery(ctx context.Context, entry QueryLog) error {
	if entry.RequestID == "" {
		entry.RequestID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_logs
			(tracking_number, status, response_time, error_message, ip_address, user_agent, request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TrackingNumber,
		entry.Status,
		entry.ResponseTime.Milliseconds(),
		nullString(entry.ErrorMessage),
		nullString(entry.IPAddress),
		nullString(entry.UserAgent),
		entry.RequestID,
		entry.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

// RecentQueries returns the newest limit log entries, newest first.
func (s *Store) RecentQueries(ctx context.Context, limit int) ([]QueryLog, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tracking_number, status, response_time, error_message, ip_address, user_agent, request_id, created_at
		FROM query_logs
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent queries: %w", err)
	}
	defer rows.Close()

	var logs []QueryLog
	for rows.Next() {
		var (
			q                     QueryLog
			responseMS            sql.NullInt64
			errMsg, ip, ua, reqID sql.NullString
			createdAt             string
		)
		if err := rows.Scan(&q.ID, &q.TrackingNumber, &q.Status, &responseMS, &errMsg, &ip, &ua, &reqID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan query log: %w", err)
		}
		q.ResponseTimeMS = responseMS.Int64
		q.ResponseTime = time.Duration(responseMS.Int64) * time.Millisecond
		q.ErrorMessage = errMsg.String
		q.IPAddress = ip.String
		q.UserAgent = ua.String
		q.RequestID = reqID.String
		q.CreatedAt = parseTimestamp(createdAt)
		logs = append(logs, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query logs: %w", err)
	}
	return logs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// parseTimestamp accepts the stored layout, SQLite's CURRENT_TIMESTAMP
// format and RFC 3339 (the driver may hand DATETIME columns back as time.Time).
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{timestampLayout, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
