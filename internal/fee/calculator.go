package fee

import (
	"math"
	"time"
)

// DefaultHourlyRate is charged when no rate is configured.
const DefaultHourlyRate = 2.0

// Calculator converts dwell time into a billable amount. Every started hour
// is billed in full and any stay bills at least one hour.
type Calculator struct {
	hourlyRate float64
}

// NewCalculator returns a calculator with fallback to the default rate.
func NewCalculator(hourlyRate float64) *Calculator {
	if hourlyRate <= 0 {
		hourlyRate = DefaultHourlyRate
	}
	return &Calculator{hourlyRate: hourlyRate}
}

// Compute returns the fee for a stay from entryTime to now.
func (c *Calculator) Compute(entryTime, now time.Time) float64 {
	hours := now.Sub(entryTime).Seconds() / 3600
	billable := math.Ceil(hours)
	if billable < 1 {
		billable = 1
	}
	return billable * c.hourlyRate
}

// HourlyRate exposes the configured rate.
func (c *Calculator) HourlyRate() float64 {
	return c.hourlyRate
}
