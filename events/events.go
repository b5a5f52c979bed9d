/*
Package events carries leave lifecycle changes out of the process.

PURPOSE:
  The lifecycle service reports every persisted change to a leave.Notifier.
  Outbox is that notifier: it queues events in memory without blocking the
  caller. Relay drains the outbox on a ticker and hands batches to a
  Publisher (Kafka or the log). Failed batches are requeued.

FLOW:
  Service ──Notify──▶ Outbox ──Drain──▶ Relay ──Publish──▶ Kafka / zap

EVENT KINDS:
  leave.requested, leave.approved, leave.rejected, leave.cancelled

SEE ALSO:
  - leave/service.go: emits Changes
  - cmd/server/main.go: wiring
*/
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/leave"
)

type Event struct {
	ID         string
	Kind       string
	LeaveID    string
	EmployeeID string
	Payload    []byte
	OccurredAt time.Time
}

type payload struct {
	LeaveID     string    `json:"leave_id"`
	EmployeeID  string    `json:"employee_id"`
	ActorID     string    `json:"actor_id"`
	Label       string    `json:"label"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	IsSpecial   bool      `json:"is_special"`
	SpecialType string    `json:"special_type,omitempty"`
	Status      string    `json:"status"`
	ApproverID  string    `json:"approver_id,omitempty"`
	TotalDays   string    `json:"total_days"`
	TotalHours  string    `json:"total_hours"`
}

// FromChange converts a lifecycle change into an event.
func FromChange(c leave.Change) (Event, error) {
	r := c.Record
	body, err := json.Marshal(payload{
		LeaveID:     r.ID,
		EmployeeID:  r.EmployeeID,
		ActorID:     c.ActorID,
		Label:       r.Label,
		Start:       r.Start,
		End:         r.End,
		IsSpecial:   r.Kind.IsSpecial(),
		SpecialType: string(r.Kind.SpecialType()),
		Status:      string(r.Status()),
		ApproverID:  r.ApproverID(),
		TotalDays:   r.TotalDays.String(),
		TotalHours:  r.TotalHours.String(),
	})
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:         uuid.NewString(),
		Kind:       "leave." + string(c.Action),
		LeaveID:    r.ID,
		EmployeeID: r.EmployeeID,
		Payload:    body,
		OccurredAt: c.At,
	}, nil
}
