package domain

import "time"

// StatusHistoryEntry is an immutable audit record of one state change.
//
// FromStatus is nil only for the creation event. ActorID records the
// account that made the change; integration-created tickets carry the
// machine account the bridge submits under. Entries are append-only:
// nothing updates or deletes them.
type StatusHistoryEntry struct {
	ID         string
	TicketID   string
	FromStatus *TicketStatus
	ToStatus   TicketStatus
	ActorID    *string
	Reason     string
	CreatedAt  time.Time
}
