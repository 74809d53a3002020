package domain

import (
	"time"
)

type AccountID string

func (aid AccountID) String() string {
	return string(aid)
}

// ObjectType identifies one kind of remote billing object (customer, invoice, ...)
type ObjectType string

func (ot ObjectType) String() string {
	return string(ot)
}

type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusError    RunStatus = "error"
)

// SyncRun is one logical backfill execution for an account.  A run's identity
// is (AccountID, StartedAt) - there is no surrogate key.
type SyncRun struct {
	AccountID      AccountID
	StartedAt      time.Time
	ClosedAt       *time.Time
	Status         RunStatus
	ErrorMessage   string
	TotalProcessed int64
	TriggeredBy    string
}

func (r *SyncRun) IsClosed() bool {
	return r.Status == RunStatusComplete || r.Status == RunStatusError
}

// ManagedWebhook ties a remote webhook endpoint to the locally generated
// routing identifier embedded in its callback URL.
type ManagedWebhook struct {
	EndpointID    string
	RoutingID     string
	BaseURL       string
	CallbackURL   string
	EnabledEvents []string
	Status        string
	CreatedAt     time.Time
}
