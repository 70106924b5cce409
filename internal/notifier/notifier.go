// Package notifier resolves notification triggers into recipient sets and
// dispatches each recipient exactly once per trigger.
package notifier

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/meter"
	"github.com/johanmaxwell/server-toilet/internal/metrics"
	"github.com/johanmaxwell/server-toilet/internal/models"
	"github.com/johanmaxwell/server-toilet/internal/push"
)

// UserStore resolves active staff recipients.
type UserStore interface {
	ActiveJanitors(ctx context.Context, companyID string) ([]models.Recipient, error)
}

// ReminderStore reads and consumes vacancy subscriptions.
type ReminderStore interface {
	Match(ctx context.Context, companyID, building, location, gender string) ([]models.ReminderSubscription, error)
	Delete(ctx context.Context, companyID, id string) error
}

// Meter accounts store operations.
type Meter interface {
	RecordOp(companyID string, kind meter.OpKind, count int)
}

// Notifier fans a trigger out to its recipients. Each dispatch runs
// independently; one recipient's failure never aborts the siblings.
type Notifier struct {
	users     UserStore
	reminders ReminderStore
	sender    push.Sender
	meter     Meter
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewNotifier creates a notifier. metrics may be nil.
func NewNotifier(users UserStore, reminders ReminderStore, sender push.Sender, m Meter, mt *metrics.Metrics, logger *zap.Logger) *Notifier {
	return &Notifier{
		users:     users,
		reminders: reminders,
		sender:    sender,
		meter:     m,
		metrics:   mt,
		logger:    logger,
	}
}

// NotifyJanitors sends title/body to every active janitor for the tenant.
func (n *Notifier) NotifyJanitors(ctx context.Context, companyID, title, body string) error {
	recipients, err := n.users.ActiveJanitors(ctx, companyID)
	if err != nil {
		return err
	}
	n.meter.RecordOp(companyID, meter.OpRead, len(recipients))

	n.dispatch(ctx, companyID, dedupe(recipients), title, body)
	return nil
}

// NotifyVacancy fires every reminder subscription matching the identity's
// position, then consumes the subscriptions. A subscription is one-shot: it
// is deleted whether or not its delivery succeeded.
func (n *Notifier) NotifyVacancy(ctx context.Context, companyID string, identity models.DeviceIdentity) error {
	subs, err := n.reminders.Match(ctx, companyID, identity.Building, identity.Location, identity.Gender)
	if err != nil {
		return err
	}
	n.meter.RecordOp(companyID, meter.OpRead, len(subs))

	recipients := make([]models.Recipient, 0, len(subs))
	for _, sub := range subs {
		recipients = append(recipients, models.Recipient{
			Token:    sub.RecipientToken,
			Location: sub.Location,
			Gender:   sub.Gender,
		})
	}

	title := "Toilet Available"
	body := Humanize(identity.Location) + " (" + identity.Gender + ") is now vacant"
	n.dispatch(ctx, companyID, dedupe(recipients), title, body)

	for _, sub := range subs {
		if err := n.reminders.Delete(ctx, companyID, sub.ID); err != nil {
			n.logger.Error("Failed to delete reminder subscription",
				zap.String("company_id", companyID),
				zap.String("subscription_id", sub.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// dispatch sends to every recipient concurrently and waits for all of them.
func (n *Notifier) dispatch(ctx context.Context, companyID string, recipients []models.Recipient, title, body string) {
	var wg sync.WaitGroup
	for _, rec := range recipients {
		wg.Add(1)
		go func(rec models.Recipient) {
			defer wg.Done()

			if err := n.sender.Send(ctx, rec.Token, title, body); err != nil {
				if n.metrics != nil {
					n.metrics.NotificationsFailed.Inc()
				}
				n.logger.Error("Failed to send notification",
					zap.String("company_id", companyID),
					zap.String("token", rec.Token),
					zap.Error(err),
				)
				return
			}

			if n.metrics != nil {
				n.metrics.NotificationsSent.Inc()
			}
			n.logger.Info("Notification sent",
				zap.String("company_id", companyID),
				zap.String("token", rec.Token),
			)
		}(rec)
	}
	wg.Wait()
}

// dedupe keeps one recipient per {token, location, gender}.
func dedupe(recipients []models.Recipient) []models.Recipient {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]models.Recipient, 0, len(recipients))
	for _, rec := range recipients {
		key := rec.Token + "|" + rec.Location + "|" + rec.Gender
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// Humanize turns a snake_case identifier into capitalized words.
func Humanize(s string) string {
	words := strings.Split(s, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
