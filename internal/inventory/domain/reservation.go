package domain

import "time"

type ReservationState string

const (
	// ReservationNone marks a record that has not been persisted yet.
	ReservationNone      ReservationState = ""
	ReservationHeld      ReservationState = "held"
	ReservationReleased  ReservationState = "released"
	ReservationConfirmed ReservationState = "confirmed"
	ReservationRestocked ReservationState = "restocked"
)

// Reservation attributes a hold on a product to the order that took it.
// There is at most one reservation per (OrderID, ProductID).
type Reservation struct {
	OrderID   string
	ProductID string
	Quantity  int
	State     ReservationState
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Reservation) Exists() bool {
	return r.State != ReservationNone
}

// CanMoveTo reports whether the lifecycle allows the state change.
func (r Reservation) CanMoveTo(next ReservationState) bool {
	switch r.State {
	case ReservationNone:
		return next == ReservationHeld
	case ReservationHeld:
		return next == ReservationReleased || next == ReservationConfirmed
	case ReservationConfirmed:
		return next == ReservationRestocked
	default:
		return false
	}
}

func (r *Reservation) MoveTo(next ReservationState, now time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.State = next
	r.UpdatedAt = now
}
