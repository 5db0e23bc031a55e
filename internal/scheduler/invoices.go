package scheduler

import (
	"context"
	"errors"
	"time"

	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	"github.com/invoicekits/invoicekits/internal/companycontext"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	obsmetrics "github.com/invoicekits/invoicekits/internal/observability/metrics"
	"github.com/invoicekits/invoicekits/internal/scheduler/guard"
	pkgdb "github.com/invoicekits/invoicekits/pkg/db"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MarkOverdueJob moves sent invoices whose due date has passed to overdue.
func (s *Scheduler) MarkOverdueJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobMarkOverdue, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	n, err := s.invoiceRepo.MarkOverdue(ctx, s.db, guard.StartOfDay(s.clock.Now()))
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.invoice.mark_overdue.failed", JobMarkOverdue, 0, err)
		return err
	}
	run.AddProcessed(int(n))
	obsmetrics.Scheduler().AddBatchProcessed(JobMarkOverdue, "invoices", int(n))
	return nil
}

// LateFeesJob applies the company late fee once to every open invoice past
// its grace period, then notifies the client.
func (s *Scheduler) LateFeesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobLateFees, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	companies, err := s.companyRepo.ListLateFeeEnabled(ctx, s.db)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.late_fee.list_companies.failed", JobLateFees, 0, err)
		return err
	}

	now := s.clock.Now()
	today := guard.StartOfDay(now)
	var jobErr error
	for i := range companies {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		company := &companies[i]
		policy := company.LateFeePolicy()
		companyCtx := companycontext.WithCompanyID(s.withLogContext(ctx, company.ID), company.ID)

		invoices, err := s.invoiceRepo.ListLateFeeCandidates(ctx, s.db, company.ID, today.AddDate(0, 0, -policy.GraceDays), s.cfg.BatchSize)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.late_fee.list_invoices.failed", JobLateFees, company.ID, err)
			continue
		}

		for j := range invoices {
			candidate := &invoices[j]
			if err := guard.EnsureLateFeeEligible(candidate, policy.GraceDays, now); err != nil {
				s.logger(companyCtx).Debug("scheduler.late_fee.skipped",
					zap.String("invoice_id", candidate.ID.String()),
					zap.String("reason", err.Error()),
				)
				continue
			}
			updated, err := s.invoiceSvc.ApplyLateFee(companyCtx, candidate.ID.String(), decimal.Zero)
			if errors.Is(err, invoicedomain.ErrLateFeeAlreadyApplied) {
				continue
			}
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(ctx, run, "scheduler.late_fee.apply.failed", JobLateFees, company.ID, err,
					zap.String("invoice_id", candidate.ID.String()),
				)
				continue
			}
			run.AddProcessed(1)
			obsmetrics.Scheduler().AddBatchProcessed(JobLateFees, "invoices", 1)
			s.logger(companyCtx).Info("late_fee.applied",
				zap.String("invoice_id", updated.ID.String()),
				zap.String("invoice_number", updated.InvoiceNumber),
				zap.String("fee", updated.LateFeeApplied.StringFixed(2)),
			)
			s.notifyLateFee(companyCtx, company, updated, now)
		}
	}
	return jobErr
}

func (s *Scheduler) notifyLateFee(ctx context.Context, company *companydomain.Company, inv *invoicedomain.Invoice, now time.Time) {
	if inv.ClientEmail == "" {
		return
	}
	msg, err := lateFeeMessage(company, inv, inv.DaysOverdue(now))
	if err == nil {
		err = s.email.Send(ctx, msg)
	}
	if err != nil {
		s.logger(ctx).Warn("late_fee.notification.failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
	}
}

// PaymentRemindersJob emails one reminder per invoice and offset. The
// reminder log makes repeated runs on the same day no-ops.
func (s *Scheduler) PaymentRemindersJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPaymentReminders, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	companies, err := s.companyRepo.ListRemindersEnabled(ctx, s.db)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.reminder.list_companies.failed", JobPaymentReminders, 0, err)
		return err
	}

	today := guard.StartOfDay(s.clock.Now())
	var jobErr error
	for i := range companies {
		company := &companies[i]
		companyCtx := s.withLogContext(ctx, company.ID)
		for _, offset := range s.cfg.ReminderOffsets {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			dueDay := today.AddDate(0, 0, -offset)
			invoices, err := s.invoiceRepo.ListReminderCandidates(ctx, s.db, company.ID, dueDay, dueDay.AddDate(0, 0, 1))
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(ctx, run, "scheduler.reminder.list_invoices.failed", JobPaymentReminders, company.ID, err)
				continue
			}
			for j := range invoices {
				sent, err := s.sendReminder(companyCtx, company, &invoices[j], offset)
				if err != nil {
					jobErr = errors.Join(jobErr, err)
					s.logSchedulerError(ctx, run, "scheduler.reminder.failed", JobPaymentReminders, company.ID, err,
						zap.String("invoice_id", invoices[j].ID.String()),
						zap.Int("days_offset", offset),
					)
					continue
				}
				if sent {
					run.AddProcessed(1)
					obsmetrics.Scheduler().AddBatchProcessed(JobPaymentReminders, "reminders", 1)
				}
			}
		}
	}
	return jobErr
}

// sendReminder reports whether a reminder was attempted. Delivery failures
// are recorded in the log row and not returned.
func (s *Scheduler) sendReminder(ctx context.Context, company *companydomain.Company, inv *invoicedomain.Invoice, offset int) (bool, error) {
	if err := guard.EnsureReminderEligible(inv); err != nil {
		return false, nil
	}
	already, err := s.invoiceRepo.ReminderSent(ctx, s.db, inv.ID, offset)
	if err != nil {
		return false, err
	}
	if already {
		return false, nil
	}

	reminderType := guard.ReminderType(offset)
	msg, err := reminderMessage(company, inv, offset)
	if err == nil {
		err = s.email.Send(ctx, msg)
	}
	entry := &invoicedomain.ReminderLog{
		ID:             s.genID.Generate(),
		InvoiceID:      inv.ID,
		DaysOffset:     offset,
		ReminderType:   reminderType,
		RecipientEmail: inv.ClientEmail,
		Success:        err == nil,
		CreatedAt:      s.clock.Now(),
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
		s.logger(ctx).Warn("reminder.delivery.failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("reminder_type", reminderType),
			zap.Error(err),
		)
	}
	if s.metrics != nil {
		s.metrics.RecordReminder(ctx, reminderType, entry.Success)
	}

	if err := s.invoiceRepo.InsertReminderLog(ctx, s.db, entry); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return true, err
	}
	return true, nil
}
