package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fitportal/internal/models"
)

const submissionColumns = `id,name,first_name,last_name,email,phone,message,services,source_ip,created_at,` +
	`delivery_status,emails_sent,emails_failed,delivery_attempts,last_delivery_error,delivered_at`

func scanSubmission(row scanner) (models.ContactSubmission, error) {
	var sub models.ContactSubmission
	var phone, sourceIP, lastErr sql.NullString
	var deliveredAt sql.NullTime
	err := row.Scan(&sub.ID, &sub.Name, &sub.FirstName, &sub.LastName, &sub.Email, &phone, &sub.Message, &sub.Services, &sourceIP, &sub.CreatedAt,
		&sub.Delivery.Status, &sub.Delivery.EmailsSent, &sub.Delivery.EmailsFailed, &sub.Delivery.Attempts, &lastErr, &deliveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ContactSubmission{}, ErrNotFound
	}
	if err != nil {
		return models.ContactSubmission{}, err
	}
	sub.Phone = stringPtr(phone)
	sub.SourceIP = sourceIP.String
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.Delivery.LastError = stringPtr(lastErr)
	sub.Delivery.DeliveredAt = timePtr(deliveredAt)
	return sub, nil
}

// InsertSubmission persists a new submission with pending delivery and returns it with its id.
func (s *Store) InsertSubmission(ctx context.Context, sub models.ContactSubmission) (models.ContactSubmission, error) {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	sub.Delivery = models.Delivery{Status: models.DeliveryPending}
	var sourceIP any
	if sub.SourceIP != "" {
		sourceIP = sub.SourceIP
	}
	id, err := s.insert(ctx,
		`INSERT INTO contact_submissions(name,first_name,last_name,email,phone,message,services,source_ip,created_at,delivery_status) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		sub.Name, sub.FirstName, sub.LastName, sub.Email, nullable(sub.Phone), sub.Message, sub.Services, sourceIP, sub.CreatedAt, string(sub.Delivery.Status),
	)
	if err != nil {
		return models.ContactSubmission{}, err
	}
	sub.ID = id
	return sub, nil
}

func (s *Store) GetSubmission(ctx context.Context, id int64) (models.ContactSubmission, error) {
	return scanSubmission(s.queryRow(ctx, `SELECT `+submissionColumns+` FROM contact_submissions WHERE id=?`, id))
}

// ListSubmissions returns submissions created at or after q.Since, newest first.
func (s *Store) ListSubmissions(ctx context.Context, q models.SubmissionQuery) ([]models.ContactSubmission, error) {
	rows, err := s.query(ctx,
		`SELECT `+submissionColumns+` FROM contact_submissions WHERE created_at >= ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		q.Since.UTC(), q.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.ContactSubmission, 0, q.Limit)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSubmissionDelivery(ctx context.Context, id int64, d models.Delivery) error {
	var deliveredAt any
	if d.DeliveredAt != nil {
		deliveredAt = d.DeliveredAt.UTC()
	}
	res, err := s.exec(ctx,
		`UPDATE contact_submissions SET delivery_status=?, emails_sent=?, emails_failed=?, delivery_attempts=?, last_delivery_error=?, delivered_at=? WHERE id=?`,
		string(d.Status), d.EmailsSent, d.EmailsFailed, d.Attempts, nullable(d.LastError), deliveredAt, id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
