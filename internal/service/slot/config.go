package slot

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultOpenHour      = 8
	DefaultCloseHour     = 18
	DefaultDailyCapacity = 10

	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Config holds the clinic's booking rules.
type Config struct {
	OpenHour      int
	CloseHour     int
	DailyCapacity int
	OpenDays      []time.Weekday
	// Location is the clinic-local zone used to decide what "today" is.
	Location *time.Location
}

// DefaultConfig is Monday to Friday, 08:00 to 18:00, ten appointments a day.
func DefaultConfig() Config {
	return Config{
		OpenHour:      DefaultOpenHour,
		CloseHour:     DefaultCloseHour,
		DailyCapacity: DefaultDailyCapacity,
		OpenDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
		Location: time.Local,
	}
}

func (c Config) Validate() error {
	// A close of 24 could never be reached by an HH:MM time.
	if c.OpenHour < 0 || c.CloseHour > 23 || c.OpenHour >= c.CloseHour {
		return fmt.Errorf("open hour %d must be before close hour %d within 0..23", c.OpenHour, c.CloseHour)
	}
	if c.DailyCapacity <= 0 {
		return fmt.Errorf("daily capacity must be positive, got %d", c.DailyCapacity)
	}
	if len(c.OpenDays) == 0 {
		return fmt.Errorf("at least one open day is required")
	}
	return nil
}

func (c Config) isOpenDay(d time.Weekday) bool {
	for _, od := range c.OpenDays {
		if od == d {
			return true
		}
	}
	return false
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// HoursMessage renders the operating-hours error, e.g.
// "Appointment time must be between 8:00 AM and 6:00 PM".
func (c Config) HoursMessage() string {
	return fmt.Sprintf("Appointment time must be between %s and %s",
		formatHour(c.OpenHour), formatHour(c.CloseHour))
}

// OpenDayNames lists the open days in lower case, Sunday first.
func (c Config) OpenDayNames() []string {
	names := make([]string, 0, len(c.OpenDays))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if c.isOpenDay(d) {
			names = append(names, strings.ToLower(d.String()))
		}
	}
	return names
}

func formatHour(h int) string {
	return time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format("3:04 PM")
}

// ParseWeekday accepts full English day names or their three-letter
// abbreviations, in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}
