/*
notify.go - Reviewer notifications

PURPOSE:
  Fire-and-forget delivery of penalty events to reviewers. Two touchpoints:
  one NewPenalty alert per created penalty, and one DailySummary per run
  that created at least one.

DELIVERY:
  Every (recipient, channel) pair is attempted. A failure is logged and
  counted; it never stops delivery to the others and is never returned
  to the caller.

CHANNELS:
  LogChannel:   writes the event to the log (always available)
  EmailChannel: SMTP with SASL PLAIN (email.go)

SEE ALSO:
  - api/scheduler.go: emits DailySummary
*/
package notify

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warp/staffops/generic"
)

// =============================================================================
// EVENTS
// =============================================================================

type Kind string

const (
	KindNewPenalty   Kind = "new_penalty"
	KindDailySummary Kind = "daily_summary"
)

// Event is one notification. Penalty is set for KindNewPenalty only.
type Event struct {
	Kind    Kind
	Subject string
	Body    string
	Penalty *generic.AppliedPenalty
	Count   int
	AsOf    generic.Date
}

// NewPenalty builds the per-penalty alert.
func NewPenalty(p generic.AppliedPenalty) Event {
	amount := fmt.Sprintf("%d deduction day(s)", p.DeductionDays)
	if p.PenaltyType == generic.PenaltySuspension {
		amount = fmt.Sprintf("%d suspension day(s)", p.SuspensionDays)
	}
	return Event{
		Kind:    KindNewPenalty,
		Subject: fmt.Sprintf("New %s penalty for employee %s", p.PenaltyType, p.EmployeeID),
		Body: fmt.Sprintf("Leave %s is %d day(s) overdue. Policy %s proposes %s. Penalty %s awaits review.",
			p.LeaveID, p.DelayDays, p.PolicyID, amount, p.ID),
		Penalty: &p,
		Count:   1,
	}
}

// DailySummary builds the aggregate alert for one run.
func DailySummary(asOf generic.Date, created int) Event {
	return Event{
		Kind:    KindDailySummary,
		Subject: fmt.Sprintf("Delay penalties for %s", asOf),
		Body:    fmt.Sprintf("%d new penalty(ies) were created on %s and await review.", created, asOf),
		Count:   created,
		AsOf:    asOf,
	}
}

// =============================================================================
// NOTIFIER
// =============================================================================

// Channel delivers an event to one recipient.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipient string, ev Event) error
}

// Report counts delivery attempts.
type Report struct {
	Sent   int
	Failed int
}

// Notifier fans events out to every recipient on every channel.
type Notifier struct {
	channels   []Channel
	recipients []string
	logger     *log.Entry
}

// New builds a Notifier. recipients is the default reviewer list.
func New(recipients []string, logger *log.Entry, channels ...Channel) *Notifier {
	if logger == nil {
		logger = log.WithField("component", "notify")
	}
	return &Notifier{channels: channels, recipients: recipients, logger: logger}
}

// Notify delivers ev. Nil or empty recipients means the default list.
func (n *Notifier) Notify(ctx context.Context, ev Event, recipients ...string) Report {
	var report Report
	if n == nil {
		return report
	}
	if len(recipients) == 0 {
		recipients = n.recipients
	}
	for _, r := range recipients {
		for _, ch := range n.channels {
			if err := n.send(ctx, ch, r, ev); err != nil {
				n.logger.WithError(err).WithFields(log.Fields{
					"recipient": r,
					"channel":   ch.Name(),
					"kind":      ev.Kind,
				}).Error("notification not delivered")
				report.Failed++
				continue
			}
			report.Sent++
		}
	}
	return report
}

// send isolates a panicking channel the same way as a failing one.
func (n *Notifier) send(ctx context.Context, ch Channel, recipient string, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("channel panic: %v", r)
		}
	}()
	return ch.Send(ctx, recipient, ev)
}

// PenaltyHook adapts the notifier to the engine's per-penalty callback.
func (n *Notifier) PenaltyHook() func(ctx context.Context, p generic.AppliedPenalty) {
	return func(ctx context.Context, p generic.AppliedPenalty) {
		n.Notify(ctx, NewPenalty(p))
	}
}

// =============================================================================
// LOG CHANNEL
// =============================================================================

// LogChannel writes events to the log.
type LogChannel struct {
	Logger *log.Entry
}

func (LogChannel) Name() string { return "log" }

func (c LogChannel) Send(_ context.Context, recipient string, ev Event) error {
	logger := c.Logger
	if logger == nil {
		logger = log.WithField("component", "notify")
	}
	fields := log.Fields{"recipient": recipient, "kind": ev.Kind, "count": ev.Count}
	if ev.Penalty != nil {
		fields["penalty_id"] = ev.Penalty.ID
		fields["employee_id"] = ev.Penalty.EmployeeID
	}
	logger.WithFields(fields).Info(ev.Subject)
	return nil
}
