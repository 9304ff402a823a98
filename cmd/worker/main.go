package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"topdivers/backend/internal/config"
	"topdivers/backend/internal/db"
	"topdivers/backend/internal/integrations"
	"topdivers/backend/internal/logging"
	"topdivers/backend/internal/models"
	"topdivers/backend/internal/repository"

	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("log error: %v", err)
	}
	defer func() {
		_ = cleanup()
	}()
	logger = logger.With("service", "worker")
	slog.SetDefault(logger)

	if cfg.Telegram.BotToken == "" || cfg.Telegram.OrdersChatID == 0 {
		logger.Error("telegram config missing", "hint", "set TELEGRAM_BOT_TOKEN and TELEGRAM_ORDERS_CHAT_ID")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db error", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repository.New(pool)
	telegram := integrations.NewTelegramClient(cfg.Telegram.BotToken)
	// Telegram allows roughly one message per second per chat.
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)

	logger.Info("worker_started", "orders_chat_id", cfg.Telegram.OrdersChatID)
	for {
		if err := repo.RequeueStaleProcessing(ctx, 10*time.Minute); err != nil {
			logger.Warn("requeue_stale_jobs_error", "error", err)
		}
		jobs, err := repo.FetchDueNotificationJobs(ctx, 100)
		if err != nil {
			logger.Error("fetch_jobs_error", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if len(jobs) == 0 {
			time.Sleep(10 * time.Second)
			continue
		}

		for _, job := range jobs {
			if err := limiter.Wait(ctx); err != nil {
				logger.Error("limiter_error", "error", err)
				break
			}
			if err := handleJob(ctx, repo, telegram, cfg.Telegram.OrdersChatID, job, logger); err != nil {
				logger.Error("job_failed", "job_id", job.ID, "error", err)
			}
		}
	}
}

func handleJob(ctx context.Context, repo *repository.Repository, telegram *integrations.TelegramClient, chatID int64, job models.NotificationJob, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("job_processing", "job_id", job.ID, "kind", job.Kind, "invoice_id", job.InvoiceID, "run_at", job.RunAt)

	text := buildNotification(job)
	if text == "" {
		return repo.UpdateNotificationJobStatus(ctx, job.ID, "failed", job.Attempts+1, "unknown job kind", nil)
	}

	if err := telegram.SendMessage(chatID, text); err != nil {
		attempts := job.Attempts + 1
		if attempts >= 3 {
			return repo.UpdateNotificationJobStatus(ctx, job.ID, "failed", attempts, err.Error(), nil)
		}
		delay := time.Duration(1<<attempts) * time.Minute
		nextRun := time.Now().Add(delay)
		return repo.UpdateNotificationJobStatus(ctx, job.ID, "pending", attempts, err.Error(), &nextRun)
	}

	if err := repo.UpdateNotificationJobStatus(ctx, job.ID, "sent", job.Attempts, "", nil); err != nil {
		return err
	}
	logger.Info("job_sent", "job_id", job.ID, "kind", job.Kind)
	return nil
}

func buildNotification(job models.NotificationJob) string {
	switch job.Kind {
	case models.NotificationInvoiceCreated:
		return buildCreatedMessage(job.Payload)
	case models.NotificationInvoicePaid:
		return buildPaidMessage(job.Payload)
	default:
		return ""
	}
}

func buildCreatedMessage(payload map[string]interface{}) string {
	buyer := payloadString(payload, "buyerName")
	activity := payloadString(payload, "activity")
	activityName := payloadString(payload, "activityName")
	amount := payloadString(payload, "amount")
	currency := payloadString(payload, "currency")
	invoiceType := payloadString(payload, "invoiceType")
	reference := payloadString(payload, "customerReference")

	lines := make([]string, 0, 4)
	lines = append(lines, withDetail("New invoice", buyer))
	if activityName != "" {
		lines = append(lines, withDetail(activity, activityName))
	}
	if amount != "" {
		line := strings.TrimSpace(amount + " " + currency)
		if invoiceType != "" {
			line += " (" + invoiceType + ")"
		}
		lines = append(lines, line)
	}
	if reference != "" {
		lines = append(lines, "Ref: "+reference)
	}
	return strings.Join(lines, "\n")
}

func buildPaidMessage(payload map[string]interface{}) string {
	buyer := payloadString(payload, "buyerName")
	activity := payloadString(payload, "activity")
	amount := payloadString(payload, "amount")
	currency := payloadString(payload, "currency")
	method := payloadString(payload, "paymentMethod")
	reference := payloadString(payload, "customerReference")
	gatewayRef := payloadString(payload, "easykashReference")

	lines := make([]string, 0, 3)
	lines = append(lines, withDetail("Payment received", buyer))
	detail := strings.TrimSpace(amount + " " + currency)
	if activity != "" && detail != "" {
		detail = activity + ", " + detail
	} else if detail == "" {
		detail = activity
	}
	if method != "" && detail != "" {
		detail += " via " + method
	}
	if detail != "" {
		lines = append(lines, detail)
	}
	if reference != "" {
		ref := "Ref: " + reference
		if gatewayRef != "" {
			ref += " / EK " + gatewayRef
		}
		lines = append(lines, ref)
	}
	return strings.Join(lines, "\n")
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	raw, ok := payload[key]
	if !ok || raw == nil {
		return ""
	}
	switch value := raw.(type) {
	case string:
		return value
	case fmt.Stringer:
		return value.String()
	default:
		return fmt.Sprintf("%v", value)
	}
}

func withDetail(prefix, detail string) string {
	trimmed := strings.TrimSpace(detail)
	if trimmed == "" {
		return prefix
	}
	return fmt.Sprintf("%s: %s", prefix, trimmed)
}
