package models

import "time"

// ParkingSession represents one vehicle's stay, from admission to release.
// A session with no exit time is active and counts against zone occupancy.
type ParkingSession struct {
	ID        string     `db:"id" json:"id"`
	Plate     string     `db:"plate" json:"plate"`
	Zone      string     `db:"zone" json:"zone"`
	EntryTime time.Time  `db:"entry_time" json:"entry_time"`
	ExitTime  *time.Time `db:"exit_time" json:"exit_time,omitempty"`
	IsPaid    bool       `db:"is_paid" json:"is_paid"`
	AmountDue float64    `db:"amount_due" json:"amount_due"`
	ImagePath string     `db:"image_path" json:"image_path,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Active reports whether the vehicle is still inside.
func (s *ParkingSession) Active() bool {
	return s.ExitTime == nil
}
