package domain

// Occupancy classifies how full a plaquette is.
type Occupancy string

// Occupancy values.
const (
	OccupancyEmpty      Occupancy = "empty"
	OccupancyAvailable  Occupancy = "available"
	OccupancyNearlyFull Occupancy = "nearly_full"
	OccupancyFull       Occupancy = "full"
)

// BudgetStatus classifies spending against an allocation.
type BudgetStatus string

// BudgetStatus values.
const (
	BudgetOnTrack    BudgetStatus = "on_track"
	BudgetWarning    BudgetStatus = "warning"
	BudgetOverBudget BudgetStatus = "over_budget"
)

// AttendanceLevel classifies presence against expected working days.
type AttendanceLevel string

// AttendanceLevel values.
const (
	AttendanceOK  AttendanceLevel = "ok"
	AttendanceLow AttendanceLevel = "low"
)

// ClassifyOccupancy buckets used wells against capacity.
// A ratio at or above nearlyFullRatio counts as nearly full.
func ClassifyOccupancy(used, capacity int, nearlyFullRatio float64) Occupancy {
	switch {
	case used <= 0:
		return OccupancyEmpty
	case capacity <= 0 || used >= capacity:
		return OccupancyFull
	case float64(used) >= nearlyFullRatio*float64(capacity):
		return OccupancyNearlyFull
	default:
		return OccupancyAvailable
	}
}

// ClassifyBudget buckets spent cents against allocated cents.
func ClassifyBudget(spent, allocated int64, warnRatio float64) BudgetStatus {
	switch {
	case spent > allocated:
		return BudgetOverBudget
	case allocated > 0 && float64(spent) >= warnRatio*float64(allocated):
		return BudgetWarning
	default:
		return BudgetOnTrack
	}
}

// ClassifyAttendance compares present days against expected days.
// Zero expected days is never low.
func ClassifyAttendance(present, expected int, minRatio float64) AttendanceLevel {
	if expected <= 0 {
		return AttendanceOK
	}
	if float64(present) < minRatio*float64(expected) {
		return AttendanceLow
	}
	return AttendanceOK
}
