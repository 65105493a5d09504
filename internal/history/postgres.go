package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/signalnews/pulse-gateway/internal/domain"
)

// PostgresStore is the remote store serving authenticated sessions.
// Record lifetime is independent of any browser session.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Save(ctx context.Context, owner string, record domain.HistoryRecord) error {
	preferences, err := json.Marshal(record.UserPreferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	report, err := json.Marshal(record.FinalReportData)
	if err != nil {
		return fmt.Errorf("encode final report: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO report_history (
			job_id,
			user_id,
			topic,
			refined_topic,
			preferences,
			final_report,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		record.JobID,
		owner,
		record.Topic,
		record.RefinedTopic,
		preferences,
		report,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, owner string) ([]domain.HistoryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, topic, refined_topic, preferences, final_report, created_at
		FROM report_history
		WHERE user_id = $1
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	records := make([]domain.HistoryRecord, 0)
	for rows.Next() {
		var (
			record      domain.HistoryRecord
			preferences []byte
			report      []byte
			createdAt   time.Time
		)
		if err := rows.Scan(
			&record.JobID,
			&record.Topic,
			&record.RefinedTopic,
			&preferences,
			&report,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		if err := json.Unmarshal(preferences, &record.UserPreferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
		if err := json.Unmarshal(report, &record.FinalReportData); err != nil {
			return nil, fmt.Errorf("decode final report: %w", err)
		}
		record.Timestamp = createdAt
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate history records: %w", rows.Err())
	}
	return records, nil
}

func (s *PostgresStore) Delete(ctx context.Context, owner string, jobID string) error {
	command, err := s.pool.Exec(ctx, `
		DELETE FROM report_history
		WHERE user_id = $1 AND job_id = $2
	`, owner, jobID)
	if err != nil {
		return fmt.Errorf("delete history record: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
