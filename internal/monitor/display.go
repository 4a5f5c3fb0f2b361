// Package monitor tracks asynchronous repository operations: one-shot actions
// with optional followup polling, and the reconciliation loop that keeps the
// local view of server-side batch jobs consistent.
package monitor

// ItemState is a transient visual mark applied to a displayed object.
type ItemState string

const (
	StateIdle     ItemState = "idle"
	StateWorking  ItemState = "working"
	StateFollowup ItemState = "followup"
	StateMoving   ItemState = "moving"
	StateFailed   ItemState = "failed"
)

// Item is a displayed object the monitor can mark.
type Item interface {
	SetState(state ItemState)
}

// DisplayList is the external result-list collaborator. The monitor reflects
// operation progress through it and never renders anything itself.
type DisplayList interface {
	// Item returns the displayed item for id, or nil when not visible.
	Item(id string) Item
	// RemoveItem drops the item from the current view.
	RemoveItem(id string)
}

// Severity classifies a user-facing notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityMessage Severity = "message"
)

// Notifier posts user-facing messages.
type Notifier interface {
	Notify(severity Severity, text string)
}
