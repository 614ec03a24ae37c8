package model

// Status is the onboarding session state machine value.
type Status string

const (
	StatusNew            Status = "new"
	StatusStarted        Status = "started"
	StatusInProgress     Status = "in_progress"
	StatusAwaitingClient Status = "awaiting_client"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
)

// AllStatuses lists every recognized onboarding status.
func AllStatuses() []Status {
	return []Status{
		StatusNew,
		StatusStarted,
		StatusInProgress,
		StatusAwaitingClient,
		StatusCompleted,
		StatusFailed,
	}
}

// IsValid reports whether s is a recognized onboarding status.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusStarted, StatusInProgress, StatusAwaitingClient, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether automatic event application may no longer
// advance a session in this status. Manual transitions can still force it.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) String() string {
	return string(s)
}

// StatusFromProviderDelivery maps the provider's delivery-status vocabulary
// onto the onboarding state machine.
func StatusFromProviderDelivery(providerStatus string) Status {
	switch providerStatus {
	case "failed", "undelivered":
		return StatusFailed
	case "read", "delivered", "sent":
		return StatusAwaitingClient
	default:
		return StatusInProgress
	}
}
