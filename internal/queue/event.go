// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the audit consumer.
package queue

// EventType names a committed reservation transition.
type EventType string

const (
	EventReserved  EventType = "reservation.created"
	EventCollected EventType = "reservation.collected"
	EventCancelled EventType = "reservation.cancelled"
	EventNoShow    EventType = "reservation.no_show"
)

// ReservationEvent is published after a reservation transition commits.
// It contains enough information for downstream consumers to log, notify,
// or trigger analytics without querying the primary database.  The claim
// code is never included.
type ReservationEvent struct {
	Type            EventType `json:"type"`
	ReservationID   uint64    `json:"reservation_id"`
	BundleID        uint64    `json:"bundle_id"`
	BundleTitle     string    `json:"bundle_title"`
	SellerID        uint64    `json:"seller_id"`
	PurchaserID     uint64    `json:"purchaser_id"`
	Status          string    `json:"status"`
	DiscountedPrice string    `json:"discounted_price"`
	OccurredAt      string    `json:"occurred_at"`
}
