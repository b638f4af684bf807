package appointment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

type fakeService struct {
	created    *model.AppointmentRequest
	createErr  error
	filters    model.AppointmentFilters
	statusTo   model.AppointmentStatus
	checkDate  string
	checkTime  string
	checkErrs  []string
	summaryErr error
	actor      model.Actor
}

func (f *fakeService) Create(_ context.Context, actor model.Actor, req *model.AppointmentRequest) (*model.Appointment, error) {
	f.actor = actor
	f.created = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &model.Appointment{
		Base:    model.Base{ID: uuid.New()},
		UserID:  actor.UserID,
		Date:    req.Date,
		Time:    req.Time,
		Purpose: req.Purpose,
		Status:  model.AppointmentStatusPending,
	}, nil
}

func (f *fakeService) Get(_ context.Context, _ model.Actor, id uuid.UUID) (*model.Appointment, error) {
	return nil, apperrors.NotFound("appointment", nil)
}

func (f *fakeService) Update(_ context.Context, _ model.Actor, id uuid.UUID, req *model.AppointmentRequest) (*model.Appointment, error) {
	return &model.Appointment{Base: model.Base{ID: id}, Date: req.Date, Time: req.Time}, nil
}

func (f *fakeService) UpdateStatus(_ context.Context, _ model.Actor, id uuid.UUID, status model.AppointmentStatus, _ *string) (*model.Appointment, error) {
	f.statusTo = status
	return &model.Appointment{Base: model.Base{ID: id}, Status: status}, nil
}

func (f *fakeService) Cancel(_ context.Context, _ model.Actor, id uuid.UUID, _ *string) (*model.Appointment, error) {
	return &model.Appointment{Base: model.Base{ID: id}, Status: model.AppointmentStatusCancelled}, nil
}

func (f *fakeService) Delete(context.Context, model.Actor, uuid.UUID) error {
	return apperrors.Forbidden("you are not allowed to access this appointment")
}

func (f *fakeService) List(_ context.Context, _ model.Actor, filters model.AppointmentFilters) ([]*model.Appointment, int, error) {
	f.filters = filters
	return []*model.Appointment{{Date: "2026-10-19"}}, 1, nil
}

func (f *fakeService) Availability(_ context.Context, date string) (model.SlotSummary, error) {
	if f.summaryErr != nil {
		return model.SlotSummary{}, f.summaryErr
	}
	return model.NewSlotSummary(date, 10, 10), nil
}

func (f *fakeService) Check(_ context.Context, date, t string) (model.SlotAvailability, error) {
	f.checkDate, f.checkTime = date, t
	return model.SlotAvailability{Date: date, Errors: f.checkErrs, Capacity: 10, Remaining: 10}, nil
}

func (f *fakeService) Validate(date, t string) []string {
	f.checkDate, f.checkTime = date, t
	if f.checkErrs == nil {
		return []string{}
	}
	return f.checkErrs
}

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.RegisterValidators(); err != nil {
		panic(err)
	}
}

var testUser = uuid.MustParse("8c7e54a4-2f5e-4b0e-9f53-0d7f1c7b9a11")

func setupRouter(svc AppointmentService, role string) *gin.Engine {
	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, testUser)
		c.Set(middleware.ContextUserRole, role)
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(api)
	return r
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestCreateAppointment(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(svc, model.RoleStudent)

	w, env := do(t, r, http.MethodPost, "/api/v1/appointments", gin.H{
		"date":    "2026-10-19",
		"time":    "10:30",
		"purpose": "consultation",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "success", env.Status)
	assert.Equal(t, testUser, svc.actor.UserID)
	assert.Equal(t, model.RoleStudent, svc.actor.Role)

	var apt model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &apt))
	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
}

func TestCreateAppointmentErrors(t *testing.T) {
	t.Run("unknown purpose", func(t *testing.T) {
		r := setupRouter(&fakeService{}, model.RoleStudent)
		w, env := do(t, r, http.MethodPost, "/api/v1/appointments", gin.H{
			"date": "2026-10-19", "time": "10:30", "purpose": "surgery",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		require.Len(t, env.Errors, 1)
		assert.Contains(t, env.Errors[0], "purpose must be one of")
	})

	t.Run("validation messages pass through", func(t *testing.T) {
		msgs := []string{"Clinic is closed on weekends", "Appointment date cannot be in the past"}
		svc := &fakeService{createErr: apperrors.Unprocessable(msgs[0], msgs)}
		r := setupRouter(svc, model.RoleStudent)

		w, env := do(t, r, http.MethodPost, "/api/v1/appointments", gin.H{
			"date": "2026-10-10", "time": "10:30", "purpose": "dental",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "error", env.Status)
		assert.Equal(t, msgs[0], env.Message)
		assert.Equal(t, msgs, env.Errors)
	})

	t.Run("fully booked", func(t *testing.T) {
		svc := &fakeService{createErr: apperrors.Conflict("No appointment slots remain for this date", nil)}
		r := setupRouter(svc, model.RoleStudent)

		w, env := do(t, r, http.MethodPost, "/api/v1/appointments", gin.H{
			"date": "2026-10-19", "time": "10:30", "purpose": "dental",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "No appointment slots remain for this date", env.Message)
	})

	t.Run("lookup failure", func(t *testing.T) {
		svc := &fakeService{createErr: apperrors.Unavailable("could not verify slot availability", errors.New("timeout"))}
		r := setupRouter(svc, model.RoleStudent)

		w, _ := do(t, r, http.MethodPost, "/api/v1/appointments", gin.H{
			"date": "2026-10-19", "time": "10:30", "purpose": "dental",
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestListAppointments(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(svc, model.RoleStaff)

	w, env := do(t, r, http.MethodGet, "/api/v1/appointments?status=pending&start_date=2026-10-19&page=2&page_size=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.AppointmentStatusPending, svc.filters.Status)
	assert.Equal(t, "2026-10-19", svc.filters.StartDate)
	assert.Equal(t, 2, svc.filters.Page)

	var list struct {
		Total    int `json:"total"`
		Page     int `json:"page"`
		PageSize int `json:"page_size"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 2, list.Page)
	assert.Equal(t, 5, list.PageSize)

	w, _ = do(t, r, http.MethodGet, "/api/v1/appointments?start_date=19-10-2026", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAppointmentByID(t *testing.T) {
	r := setupRouter(&fakeService{}, model.RoleStudent)

	w, _ := do(t, r, http.MethodGet, "/api/v1/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, http.MethodDelete, "/api/v1/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := do(t, r, http.MethodPost, "/api/v1/appointments/"+uuid.NewString()+"/cancel", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"cancelled"`)
}

func TestUpdateStatusRequiresStaff(t *testing.T) {
	id := uuid.NewString()

	r := setupRouter(&fakeService{}, model.RoleStudent)
	w, _ := do(t, r, http.MethodPatch, "/api/v1/appointments/"+id+"/status", gin.H{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	svc := &fakeService{}
	r = setupRouter(svc, model.RoleStaff)
	w, _ = do(t, r, http.MethodPatch, "/api/v1/appointments/"+id+"/status", gin.H{"status": "confirmed"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.AppointmentStatusConfirmed, svc.statusTo)

	w, _ = do(t, r, http.MethodPatch, "/api/v1/appointments/"+id+"/status", gin.H{"status": "archived"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAvailability(t *testing.T) {
	t.Run("summary", func(t *testing.T) {
		r := setupRouter(&fakeService{}, model.RoleStudent)
		w, env := do(t, r, http.MethodGet, "/api/v1/appointments/availability?date=2026-10-19", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var summary model.SlotSummary
		require.NoError(t, json.Unmarshal(env.Data, &summary))
		assert.True(t, summary.IsFullyBooked)
		assert.Equal(t, 0, summary.Remaining)
	})

	t.Run("with time", func(t *testing.T) {
		svc := &fakeService{}
		r := setupRouter(svc, model.RoleStudent)
		w, _ := do(t, r, http.MethodGet, "/api/v1/appointments/availability?date=2026-10-19&time=09:15", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "09:15", svc.checkTime)
	})

	t.Run("missing date", func(t *testing.T) {
		r := setupRouter(&fakeService{}, model.RoleStudent)
		w, env := do(t, r, http.MethodGet, "/api/v1/appointments/availability", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, []string{"date is required"}, env.Errors)
	})

	t.Run("lookup failure", func(t *testing.T) {
		svc := &fakeService{summaryErr: apperrors.Unavailable("could not verify slot availability", errors.New("down"))}
		r := setupRouter(svc, model.RoleStudent)
		w, env := do(t, r, http.MethodGet, "/api/v1/appointments/availability?date=2026-10-19", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "could not verify slot availability", env.Message)
	})
}

func TestValidate(t *testing.T) {
	svc := &fakeService{checkErrs: []string{"Clinic is closed on weekends"}}
	r := setupRouter(svc, model.RoleFaculty)

	w, env := do(t, r, http.MethodPost, "/api/v1/appointments/validate", gin.H{"date": "2026-10-17", "time": "10:00"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-10-17", svc.checkDate)

	var result model.ValidationResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, []string{"Clinic is closed on weekends"}, result.Errors)
}

func TestValidateIgnoresStoreOutage(t *testing.T) {
	svc := &fakeService{summaryErr: apperrors.Unavailable("could not verify slot availability", errors.New("down"))}
	r := setupRouter(svc, model.RoleStudent)

	w, env := do(t, r, http.MethodPost, "/api/v1/appointments/validate", gin.H{"date": "2026-10-19", "time": "10:00"})
	require.Equal(t, http.StatusOK, w.Code)

	var result model.ValidationResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.NotNil(t, result.Errors)
	assert.Empty(t, result.Errors)
}
