package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	StatusForPDApproval TicketStatus = "FOR_PD_APPROVAL"
	StatusSubmitted     TicketStatus = "SUBMITTED"
	StatusDevInProgress TicketStatus = "DEV_IN_PROGRESS"
	StatusQATesting     TicketStatus = "QA_TESTING"
	StatusPDTesting     TicketStatus = "PD_TESTING"
	StatusForDeployment TicketStatus = "FOR_DEPLOYMENT"
	StatusDeployed      TicketStatus = "DEPLOYED"
	StatusCancelled     TicketStatus = "CANCELLED"
)

// AllStatuses lists every known lifecycle state.
var AllStatuses = []TicketStatus{
	StatusForPDApproval,
	StatusSubmitted,
	StatusDevInProgress,
	StatusQATesting,
	StatusPDTesting,
	StatusForDeployment,
	StatusDeployed,
	StatusCancelled,
}

// IsKnownStatus reports whether the value is a recognized state.
func IsKnownStatus(status TicketStatus) bool {
	for _, s := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition may leave the state.
func (s TicketStatus) IsTerminal() bool {
	return s == StatusDeployed || s == StatusCancelled
}

// IsAssignable reports whether developer/QA assignment may change in this state.
func (s TicketStatus) IsAssignable() bool {
	switch s {
	case StatusSubmitted, StatusDevInProgress, StatusQATesting, StatusPDTesting:
		return true
	}
	return false
}

// TicketCategory classifies the nature of a request.
type TicketCategory string

const (
	CategoryBug            TicketCategory = "BUG"
	CategoryFeatureRequest TicketCategory = "FEATURE_REQUEST"
	CategoryEnhancement    TicketCategory = "ENHANCEMENT"
	CategorySupport        TicketCategory = "SUPPORT"
	CategoryTask           TicketCategory = "TASK"
	CategoryOther          TicketCategory = "OTHER"
)

// IsKnownCategory reports whether the value is a recognized category.
func IsKnownCategory(category TicketCategory) bool {
	switch category {
	case CategoryBug, CategoryFeatureRequest, CategoryEnhancement, CategorySupport, CategoryTask, CategoryOther:
		return true
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "LOW"
	PriorityMedium TicketPriority = "MEDIUM"
	PriorityHigh   TicketPriority = "HIGH"
	PriorityUrgent TicketPriority = "URGENT"
)

// IsKnownPriority reports whether the value is a recognized priority.
func IsKnownPriority(priority TicketPriority) bool {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Ticket is the aggregate moving through the approval-to-deployment pipeline.
//
// SubmitterID is set at creation and never changes. ProcessOwnerID is the
// approver that admitted the ticket past FOR_PD_APPROVAL. Assignment fields
// mutate until a terminal state. Provenance timestamps are each set exactly
// once by the transition that fires them; a terminal timestamp is non-nil
// iff the ticket sits in the matching terminal state.
type Ticket struct {
	ID                  string
	TicketNumber        string
	Category            TicketCategory
	Priority            TicketPriority
	Title               string
	Description         string
	Status              TicketStatus
	SubmitterID         string
	ProcessOwnerID      *string
	AssignedDeveloperID *string
	AssignedQaID        *string
	CancelledByID       *string
	CancellationReason  *string
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
	SubmittedAt         *time.Time
	CancelledAt         *time.Time
	DeployedAt          *time.Time
}

// FormatTicketNumber renders the human-readable sequential number for a
// ticket created at the given time, e.g. TKT-2608-0042. The sequence is
// allocated per year-month and starts at 1.
func FormatTicketNumber(createdAt time.Time, seq int64) string {
	return fmt.Sprintf("TKT-%s-%04d", YearMonthKey(createdAt), seq)
}

// YearMonthKey returns the YYMM counter key for a creation time.
func YearMonthKey(t time.Time) string {
	return t.Format("0601")
}
