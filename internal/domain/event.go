package domain

import "time"

// Event is the catalog projection the reservation engine needs: existence,
// ownership and whether stands can currently be reserved.
type Event struct {
	ID          string
	Name        string
	OrganizerID string
	Active      bool
	StartsAt    time.Time
	CreatedAt   time.Time
}
