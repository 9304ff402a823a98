package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"topdivers/backend/internal/db"
	"topdivers/backend/internal/models"
)

// TestNotificationJobLifecycle verifies notification job claim, requeue and
// status update behavior.
func TestNotificationJobLifecycle(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}
	defer pool.Close()

	repo := New(pool)
	params := pendingInvoiceParams(990108, "1002099010810020")
	params.Job = &models.NotificationJob{
		Kind:    models.NotificationInvoiceCreated,
		Payload: map[string]interface{}{"buyerName": "Test Buyer", "activity": "trip"},
	}
	created, err := repo.CreateInvoice(ctx, params)
	if err != nil {
		t.Fatalf("CreateInvoice(): %v", err)
	}
	t.Cleanup(func() { cleanupInvoice(ctx, pool, created.ID) })

	claimed, err := repo.FetchDueNotificationJobs(ctx, 100)
	if err != nil {
		t.Fatalf("FetchDueNotificationJobs(): %v", err)
	}
	job := findJobForInvoice(claimed, created.ID)
	if job == nil {
		t.Fatalf("expected job for invoice %d in %d claimed jobs", created.ID, len(claimed))
	}
	if job.Status != "processing" {
		t.Fatalf("expected claimed job to be processing, got %s", job.Status)
	}
	if job.Kind != models.NotificationInvoiceCreated {
		t.Fatalf("expected kind %s, got %s", models.NotificationInvoiceCreated, job.Kind)
	}
	if job.Payload["buyerName"] != "Test Buyer" {
		t.Fatalf("payload not round-tripped: %v", job.Payload)
	}

	again, err := repo.FetchDueNotificationJobs(ctx, 100)
	if err != nil {
		t.Fatalf("FetchDueNotificationJobs(): %v", err)
	}
	if findJobForInvoice(again, created.ID) != nil {
		t.Fatal("processing job was claimed twice")
	}

	if err := repo.RequeueStaleProcessing(ctx, 0); err != nil {
		t.Fatalf("RequeueStaleProcessing(): %v", err)
	}
	reclaimed, err := repo.FetchDueNotificationJobs(ctx, 100)
	if err != nil {
		t.Fatalf("FetchDueNotificationJobs(): %v", err)
	}
	if findJobForInvoice(reclaimed, created.ID) == nil {
		t.Fatal("requeued job was not claimable again")
	}

	nextRun := time.Now().UTC().Add(2 * time.Minute)
	if err := repo.UpdateNotificationJobStatus(ctx, job.ID, "pending", 1, "telegram: 429", &nextRun); err != nil {
		t.Fatalf("UpdateNotificationJobStatus(): %v", err)
	}
	deferred, err := repo.FetchDueNotificationJobs(ctx, 100)
	if err != nil {
		t.Fatalf("FetchDueNotificationJobs(): %v", err)
	}
	if findJobForInvoice(deferred, created.ID) != nil {
		t.Fatal("job scheduled in the future was claimed")
	}

	var status, lastError string
	var attempts int
	if err := pool.QueryRow(ctx, `
SELECT status, attempts, COALESCE(last_error, '')
FROM notification_jobs
WHERE id = $1;`, job.ID).Scan(&status, &attempts, &lastError); err != nil {
		t.Fatalf("job row: %v", err)
	}
	if status != "pending" || attempts != 1 || lastError != "telegram: 429" {
		t.Fatalf("retry bookkeeping wrong: status=%s attempts=%d last_error=%q", status, attempts, lastError)
	}

	if err := repo.UpdateNotificationJobStatus(ctx, job.ID, "sent", 2, "", nil); err != nil {
		t.Fatalf("UpdateNotificationJobStatus(sent): %v", err)
	}
	if err := pool.QueryRow(ctx, `
SELECT status, COALESCE(last_error, '')
FROM notification_jobs
WHERE id = $1;`, job.ID).Scan(&status, &lastError); err != nil {
		t.Fatalf("job row: %v", err)
	}
	if status != "sent" || lastError != "" {
		t.Fatalf("expected sent with cleared error, got status=%s last_error=%q", status, lastError)
	}
}

func findJobForInvoice(jobs []models.NotificationJob, invoiceID int64) *models.NotificationJob {
	for i := range jobs {
		if jobs[i].InvoiceID != nil && *jobs[i].InvoiceID == invoiceID {
			return &jobs[i]
		}
	}
	return nil
}
