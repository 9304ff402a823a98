package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"topdivers/backend/internal/models"

	"github.com/jackc/pgx/v5"
)

func createNotificationJobTx(ctx context.Context, tx pgx.Tx, job models.NotificationJob) (int64, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return 0, err
	}
	runAt := job.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	status := job.Status
	if status == "" {
		status = "pending"
	}
	var id int64
	err = tx.QueryRow(ctx, `
INSERT INTO notification_jobs (invoice_id, kind, run_at, payload, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id;`, job.InvoiceID, job.Kind, runAt, payload, status).Scan(&id)
	return id, err
}

func (r *Repository) FetchDueNotificationJobs(ctx context.Context, limit int) ([]models.NotificationJob, error) {
	query := `
WITH cte AS (
	SELECT id
	FROM notification_jobs
	WHERE status = 'pending' AND run_at <= now()
	ORDER BY run_at ASC
	LIMIT $1
	FOR UPDATE SKIP LOCKED
)
UPDATE notification_jobs n
SET status = 'processing', updated_at = now()
FROM cte
WHERE n.id = cte.id
RETURNING n.id, n.invoice_id, n.kind, n.run_at, n.payload, n.status, n.attempts, COALESCE(n.last_error, '');`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]models.NotificationJob, 0)
	for rows.Next() {
		var job models.NotificationJob
		var payloadBytes []byte
		var invoiceID *int64
		if err := rows.Scan(&job.ID, &invoiceID, &job.Kind, &job.RunAt, &payloadBytes, &job.Status, &job.Attempts, &job.LastError); err != nil {
			return nil, err
		}
		job.InvoiceID = invoiceID
		if len(payloadBytes) > 0 {
			_ = json.Unmarshal(payloadBytes, &job.Payload)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *Repository) UpdateNotificationJobStatus(ctx context.Context, jobID int64, status string, attempts int, lastError string, nextRun *time.Time) error {
	query := `UPDATE notification_jobs SET status = $1, attempts = $2, last_error = $3, run_at = COALESCE($4, run_at), updated_at = now() WHERE id = $5`
	_, err := r.pool.Exec(ctx, query, status, attempts, nullString(lastError), nextRun, jobID)
	return err
}

func (r *Repository) RequeueStaleProcessing(ctx context.Context, staleAfter time.Duration) error {
	query := `UPDATE notification_jobs SET status = 'pending', updated_at = now() WHERE status = 'processing' AND updated_at <= now() - $1::interval`
	interval := fmt.Sprintf("%d seconds", int(staleAfter.Seconds()))
	_, err := r.pool.Exec(ctx, query, interval)
	return err
}
