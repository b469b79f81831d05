// Package tasks runs the daily background jobs: vaccination and farrier
// reminders, the overdue invoice sweep, and monthly invoice generation.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/config"
	"github.com/marchfield/liveryard/internal/email"
	"github.com/marchfield/liveryard/internal/models"
	"github.com/marchfield/liveryard/internal/services"
)

// Task types.
const (
	TypeVaccinationReminders = "reminders:vaccination"
	TypeFarrierReminders     = "reminders:farrier"
	TypeOverdueSweep         = "invoices:overdue"
	TypeMonthlyInvoices      = "invoices:monthly"
)

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// MonthlyInvoicesPayload selects the billing month. Zero values mean the
// previous calendar month, which is what the scheduled run wants on the 1st.
type MonthlyInvoicesPayload struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
}

// NewMonthlyInvoicesTask builds an on-demand monthly generation task.
func NewMonthlyInvoicesTask(year int, month time.Month) (*asynq.Task, error) {
	payload, err := json.Marshal(MonthlyInvoicesPayload{Year: year, Month: int(month)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMonthlyInvoices, payload), nil
}

// TaskProcessor holds the dependencies the job handlers need.
type TaskProcessor struct {
	cfg       *config.Config
	db        *gorm.DB
	sender    email.Sender
	reminders *services.ReminderService
	invoices  *services.InvoiceService
	// now is swappable in tests.
	now func() time.Time
}

func NewTaskProcessor(cfg *config.Config, db *gorm.DB, sender email.Sender) *TaskProcessor {
	return &TaskProcessor{
		cfg:       cfg,
		db:        db,
		sender:    sender,
		reminders: services.NewReminderService(db),
		invoices:  services.NewInvoiceService(db),
		now:       time.Now,
	}
}

// HandleVaccinationReminders emails the yard about vaccinations inside their
// reminder window. The sent-at guard is only written after a successful send,
// so a failed delivery is retried on the next run.
func (p *TaskProcessor) HandleVaccinationReminders(ctx context.Context, t *asynq.Task) error {
	today := p.now().UTC()
	due, err := p.reminders.VaccinationsDue(today)
	if err != nil {
		return fmt.Errorf("query due vaccinations: %w", err)
	}
	if len(due) == 0 {
		log.Println("Vaccination reminders: nothing due.")
		return nil
	}

	settings, err := models.GetSettings(p.db)
	if err != nil {
		return err
	}
	recipient := settings.Email
	if recipient == "" {
		log.Println("Vaccination reminders: no yard email configured, skipping send.")
		return nil
	}

	sent := 0
	for _, v := range due {
		subject := fmt.Sprintf("Vaccination due: %s (%s)", v.Horse.Name, v.VaccinationType.Name)
		body := fmt.Sprintf(
			"%s is due a %s vaccination on %s.\n\nLast given: %s\nVet: %s\n",
			v.Horse.Name, v.VaccinationType.Name,
			v.NextDueDate.Format("2 January 2006"),
			v.DateGiven.Format("2 January 2006"),
			v.VetName,
		)
		msg := email.BuildMessage(p.cfg.SmtpFromAddress, recipient, subject, body)
		if err := p.sender.Send(ctx, []string{recipient}, subject, msg); err != nil {
			log.Printf("Vaccination reminder for %s failed: %v", v.Horse.Name, err)
			continue
		}
		if err := p.reminders.MarkVaccinationReminded(v.ID, today); err != nil {
			return err
		}
		sent++
	}
	log.Printf("Vaccination reminders: %d due, %d sent.", len(due), sent)
	return nil
}

// HandleFarrierReminders emails the yard about farrier visits coming due
// within the configured lookahead window.
func (p *TaskProcessor) HandleFarrierReminders(ctx context.Context, t *asynq.Task) error {
	today := p.now().UTC()
	due, err := p.reminders.FarrierVisitsDue(today, p.cfg.FarrierLookaheadDays)
	if err != nil {
		return fmt.Errorf("query due farrier visits: %w", err)
	}
	if len(due) == 0 {
		log.Println("Farrier reminders: nothing due.")
		return nil
	}

	settings, err := models.GetSettings(p.db)
	if err != nil {
		return err
	}
	recipient := settings.Email
	if recipient == "" {
		log.Println("Farrier reminders: no yard email configured, skipping send.")
		return nil
	}

	sent := 0
	for _, v := range due {
		subject := fmt.Sprintf("Farrier due: %s", v.Horse.Name)
		body := fmt.Sprintf(
			"%s is due the farrier on %s.\n\nLast visit: %s (%s)\n",
			v.Horse.Name,
			v.NextDueDate.Format("2 January 2006"),
			v.Date.Format("2 January 2006"), v.WorkDone,
		)
		msg := email.BuildMessage(p.cfg.SmtpFromAddress, recipient, subject, body)
		if err := p.sender.Send(ctx, []string{recipient}, subject, msg); err != nil {
			log.Printf("Farrier reminder for %s failed: %v", v.Horse.Name, err)
			continue
		}
		if err := p.reminders.MarkFarrierReminded(v.ID, today); err != nil {
			return err
		}
		sent++
	}
	log.Printf("Farrier reminders: %d due, %d sent.", len(due), sent)
	return nil
}

// HandleOverdueSweep flips sent invoices past their due date to overdue and
// notifies the owner.
func (p *TaskProcessor) HandleOverdueSweep(ctx context.Context, t *asynq.Task) error {
	asOf := p.now().UTC()
	overdue, err := p.reminders.OverdueInvoices(asOf)
	if err != nil {
		return fmt.Errorf("query overdue invoices: %w", err)
	}

	flipped := 0
	for i := range overdue {
		inv := &overdue[i]
		if err := p.reminders.MarkInvoiceOverdue(inv, asOf); err != nil {
			var bad *models.ErrInvalidTransition
			if errors.As(err, &bad) {
				log.Printf("Overdue sweep: skipping invoice %s: %v", inv.InvoiceNumber, err)
				continue
			}
			return err
		}
		flipped++

		if inv.Owner.Email == "" {
			continue
		}
		subject := fmt.Sprintf("Invoice %s is overdue", inv.InvoiceNumber)
		body := fmt.Sprintf(
			"Invoice %s for £%s was due on %s and is now overdue.\n\nPlease arrange payment at your earliest convenience.\n",
			inv.InvoiceNumber, inv.Total.StringFixed(2),
			inv.DueDate.Format("2 January 2006"),
		)
		msg := email.BuildMessage(p.cfg.SmtpFromAddress, inv.Owner.Email, subject, body)
		if err := p.sender.Send(ctx, []string{inv.Owner.Email}, subject, msg); err != nil {
			log.Printf("Overdue notice for invoice %s failed: %v", inv.InvoiceNumber, err)
		}
	}
	log.Printf("Overdue sweep: %d invoices marked overdue.", flipped)
	return nil
}

// HandleMonthlyInvoices generates draft invoices for every owner with
// billable activity in the target month. An empty payload means the previous
// calendar month.
func (p *TaskProcessor) HandleMonthlyInvoices(ctx context.Context, t *asynq.Task) error {
	var payload MonthlyInvoicesPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal monthly invoices payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	year, month := payload.Year, time.Month(payload.Month)
	if year == 0 || payload.Month == 0 {
		// Step back from the first of the current month; subtracting a month
		// from the 31st would normalize forward and land in the wrong month.
		now := p.now().UTC()
		prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		year, month = prev.Year(), prev.Month()
	}

	run, err := p.invoices.GenerateMonthlyInvoices(year, month)
	if err != nil {
		return fmt.Errorf("monthly invoice run %d-%02d: %w", year, month, err)
	}
	log.Printf("Monthly invoice run %d-%02d: %d generated, %d skipped (existing), %d empty.",
		year, month, len(run.Generated), len(run.Skipped), len(run.Empty))
	return nil
}

// NewServeMux registers all job handlers.
func NewServeMux(p *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeVaccinationReminders, p.HandleVaccinationReminders)
	mux.HandleFunc(TypeFarrierReminders, p.HandleFarrierReminders)
	mux.HandleFunc(TypeOverdueSweep, p.HandleOverdueSweep)
	mux.HandleFunc(TypeMonthlyInvoices, p.HandleMonthlyInvoices)
	return mux
}

// NewServer configures the asynq worker.
func NewServer(cfg *config.Config) *asynq.Server {
	return asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"default": 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Printf("[asynq] task %s failed: %v", task.Type(), err)
		}),
	})
}

// NewScheduler registers the daily cron entries. Reminders and the overdue
// sweep run every morning; the monthly run fires on the 1st for the month
// that just ended.
func NewScheduler(cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt(cfg), &asynq.SchedulerOpts{
		Location: time.UTC,
	})

	entries := []struct {
		spec string
		task *asynq.Task
	}{
		{"0 7 * * *", asynq.NewTask(TypeVaccinationReminders, nil)},
		{"10 7 * * *", asynq.NewTask(TypeFarrierReminders, nil)},
		{"20 7 * * *", asynq.NewTask(TypeOverdueSweep, nil)},
		{"0 6 1 * *", asynq.NewTask(TypeMonthlyInvoices, nil)},
	}
	for _, e := range entries {
		if _, err := scheduler.Register(e.spec, e.task); err != nil {
			return nil, fmt.Errorf("register %s: %w", e.task.Type(), err)
		}
	}
	return scheduler, nil
}
