package model

// SlotAvailability is derived on demand from a candidate date (and optionally a
// time) and the appointments already booked for that date. It is never stored.
type SlotAvailability struct {
	Date                   string   `json:"date"`
	IsWeekday              bool     `json:"is_weekday"`
	IsWithinOperatingHours bool     `json:"is_within_operating_hours"`
	BookedCount            int      `json:"booked_count"`
	Capacity               int      `json:"capacity"`
	Remaining              int      `json:"remaining"`
	IsFullyBooked          bool     `json:"is_fully_booked"`
	Errors                 []string `json:"errors"`
}

// ValidationResult carries the rules a candidate date and time break.
type ValidationResult struct {
	Errors []string `json:"errors"`
}

// SlotSummary is the per-date capacity view.
type SlotSummary struct {
	Date          string `json:"date"`
	BookedCount   int    `json:"booked_count"`
	Capacity      int    `json:"capacity"`
	Remaining     int    `json:"remaining"`
	IsFullyBooked bool   `json:"is_fully_booked"`
}

// NewSlotSummary derives fullness from a count and a capacity.
func NewSlotSummary(date string, booked, capacity int) SlotSummary {
	remaining := capacity - booked
	if remaining < 0 {
		remaining = 0
	}
	return SlotSummary{
		Date:          date,
		BookedCount:   booked,
		Capacity:      capacity,
		Remaining:     remaining,
		IsFullyBooked: booked >= capacity,
	}
}

// ClinicHours describes when appointments may be booked.
type ClinicHours struct {
	OpenHour      int      `json:"open_hour"`
	CloseHour     int      `json:"close_hour"`
	DailyCapacity int      `json:"daily_capacity"`
	OpenDays      []string `json:"open_days"`
	MinimumDate   string   `json:"minimum_date"`
}
