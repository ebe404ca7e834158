package model

import "time"

// StreakStatus records whether a customer's streak is still running.
type StreakStatus string

const (
	StreakActive StreakStatus = "active"
	StreakBroken StreakStatus = "broken"
)

// Streak counts consecutive collected reservations for one customer.  A
// customer has at most one streak row; the count is mirrored onto
// customer.streak.  A no-show breaks the streak and resets the count.
type Streak struct {
	ID              uint64       // streak.id
	CustomerID      uint64       // streak.customer_id (unique)
	Count           uint32       // streak.count
	Status          StreakStatus // streak.status
	LastCollectedAt *time.Time   // streak.last_collected_at (nullable)
	CreatedAt       time.Time    // streak.created_at
}

// Collected advances the streak after a successful pickup.
func (s *Streak) Collected(at time.Time) {
	switch s.Status {
	case StreakActive:
		s.Count++
	case StreakBroken:
		s.Status = StreakActive
		s.Count = 1
	}
	t := at.UTC()
	s.LastCollectedAt = &t
}

// Missed breaks the streak after a no-show.
func (s *Streak) Missed() {
	switch s.Status {
	case StreakActive, StreakBroken:
		s.Status = StreakBroken
		s.Count = 0
	}
}
