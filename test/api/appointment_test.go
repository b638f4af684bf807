//go:build integration

package api_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appointment struct {
	ID     string `json:"id"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Status string `json:"status"`
}

type summary struct {
	BookedCount   int  `json:"booked_count"`
	Capacity      int  `json:"capacity"`
	Remaining     int  `json:"remaining"`
	IsFullyBooked bool `json:"is_fully_booked"`
}

func TestClinicHours(t *testing.T) {
	resp := makeRequest(http.MethodGet, "/clinic/hours", nil, "")
	require.True(t, resp.IsSuccess(), resp.Message)

	var hours struct {
		OpenHour      int    `json:"open_hour"`
		CloseHour     int    `json:"close_hour"`
		DailyCapacity int    `json:"daily_capacity"`
		MinimumDate   string `json:"minimum_date"`
	}
	require.NoError(t, resp.Decode(&hours))
	assert.Less(t, hours.OpenHour, hours.CloseHour)
	assert.Positive(t, hours.DailyCapacity)
	assert.NotEmpty(t, hours.MinimumDate)
}

func TestAppointmentsRequireAuth(t *testing.T) {
	resp := makeRequest(http.MethodGet, "/appointments", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestValidateAppointmentTime(t *testing.T) {
	saturday := time.Now().AddDate(0, 0, 7)
	for saturday.Weekday() != time.Saturday {
		saturday = saturday.AddDate(0, 0, 1)
	}

	resp := makeRequest(http.MethodPost, "/appointments/validate", map[string]string{
		"date": saturday.Format("2006-01-02"),
		"time": "07:00",
	}, authToken)
	require.True(t, resp.IsSuccess(), resp.Message)

	var avail struct {
		Errors []string `json:"errors"`
	}
	require.NoError(t, resp.Decode(&avail))
	assert.Contains(t, avail.Errors, "Clinic is closed on weekends")
	assert.Len(t, avail.Errors, 2)

	resp = makeRequest(http.MethodPost, "/appointments/validate", map[string]string{}, authToken)
	require.True(t, resp.IsSuccess(), resp.Message)
	require.NoError(t, resp.Decode(&avail))
	assert.Contains(t, avail.Errors, "Appointment date is required")
}

func TestAppointmentLifecycle(t *testing.T) {
	date := nextOpenDate(2)

	before := makeRequest(http.MethodGet, "/appointments/availability?date="+date, nil, authToken)
	require.True(t, before.IsSuccess(), before.Message)
	var start summary
	require.NoError(t, before.Decode(&start))
	if start.IsFullyBooked {
		t.Skipf("%s is already fully booked", date)
	}

	created := makeRequest(http.MethodPost, "/appointments", map[string]interface{}{
		"date":    date,
		"time":    "10:00",
		"purpose": "consultation",
	}, authToken)
	require.Equal(t, http.StatusCreated, created.Code, created.Message)

	var apt appointment
	require.NoError(t, created.Decode(&apt))
	assert.Equal(t, "pending", apt.Status)
	t.Cleanup(func() {
		makeRequest(http.MethodDelete, "/appointments/"+apt.ID, nil, authToken)
	})

	after := makeRequest(http.MethodGet, "/appointments/availability?date="+date, nil, authToken)
	var booked summary
	require.NoError(t, after.Decode(&booked))
	assert.Equal(t, start.BookedCount+1, booked.BookedCount)

	updated := makeRequest(http.MethodPut, "/appointments/"+apt.ID, map[string]interface{}{
		"date":    date,
		"time":    "14:30",
		"purpose": "follow_up",
	}, authToken)
	require.True(t, updated.IsSuccess(), updated.Message)
	require.NoError(t, updated.Decode(&apt))
	assert.Equal(t, "14:30", apt.Time)

	confirmed := makeRequest(http.MethodPatch, "/appointments/"+apt.ID+"/status", map[string]string{
		"status": "confirmed",
	}, authToken)
	require.True(t, confirmed.IsSuccess(), confirmed.Message)

	cancelled := makeRequest(http.MethodPost, "/appointments/"+apt.ID+"/cancel", map[string]string{
		"reason": "integration test",
	}, authToken)
	require.True(t, cancelled.IsSuccess(), cancelled.Message)

	freed := makeRequest(http.MethodGet, "/appointments/availability?date="+date, nil, authToken)
	var end summary
	require.NoError(t, freed.Decode(&end))
	assert.Equal(t, start.BookedCount, end.BookedCount)
}

func TestDailyCapacity(t *testing.T) {
	date := nextOpenDate(5)

	resp := makeRequest(http.MethodGet, "/appointments/availability?date="+date, nil, authToken)
	require.True(t, resp.IsSuccess(), resp.Message)
	var s summary
	require.NoError(t, resp.Decode(&s))

	var ids []string
	t.Cleanup(func() {
		for _, id := range ids {
			makeRequest(http.MethodDelete, "/appointments/"+id, nil, authToken)
		}
	})

	for i := 0; i < s.Remaining; i++ {
		created := makeRequest(http.MethodPost, "/appointments", map[string]interface{}{
			"date":    date,
			"time":    fmt.Sprintf("%02d:00", 8+i%10),
			"purpose": "vaccination",
		}, authToken)
		require.Equal(t, http.StatusCreated, created.Code, created.Message)
		var apt appointment
		require.NoError(t, created.Decode(&apt))
		ids = append(ids, apt.ID)
	}

	full := makeRequest(http.MethodPost, "/appointments", map[string]interface{}{
		"date":    date,
		"time":    "11:00",
		"purpose": "vaccination",
	}, authToken)
	assert.Equal(t, http.StatusConflict, full.Code)
	assert.Equal(t, "No appointment slots remain for this date", full.Message)
}
