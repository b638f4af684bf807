package appointment

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

// AppointmentService is the booking logic the handler drives.
type AppointmentService interface {
	Create(ctx context.Context, actor model.Actor, req *model.AppointmentRequest) (*model.Appointment, error)
	Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error)
	Update(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.AppointmentRequest) (*model.Appointment, error)
	UpdateStatus(ctx context.Context, actor model.Actor, id uuid.UUID, status model.AppointmentStatus, reason *string) (*model.Appointment, error)
	Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, reason *string) (*model.Appointment, error)
	Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error
	List(ctx context.Context, actor model.Actor, filters model.AppointmentFilters) ([]*model.Appointment, int, error)
	Availability(ctx context.Context, date string) (model.SlotSummary, error)
	Check(ctx context.Context, date, t string) (model.SlotAvailability, error)
	Validate(date, t string) []string
}

type Handler struct {
	service AppointmentService
}

func NewHandler(service AppointmentService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes expects r to be behind Authenticate.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.GET("/availability", h.Availability)
		appointments.POST("/validate", h.Validate)
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PUT("/:id", h.UpdateAppointment)
		appointments.DELETE("/:id", h.DeleteAppointment)
		appointments.POST("/:id/cancel", h.CancelAppointment)
		appointments.PATCH("/:id/status",
			middleware.RequireRole(model.RoleAdmin, model.RoleStaff), h.UpdateStatus)
	}
}

type listQuery struct {
	Status    string `form:"status" binding:"omitempty,oneof=pending scheduled confirmed in_progress done cancelled"`
	StartDate string `form:"start_date" binding:"omitempty,clinicdate"`
	EndDate   string `form:"end_date" binding:"omitempty,clinicdate"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

type availabilityQuery struct {
	Date string `form:"date" binding:"required,clinicdate"`
	Time string `form:"time" binding:"omitempty,clinictime"`
}

func actor(c *gin.Context) (model.Actor, bool) {
	a, ok := middleware.ActorFromContext(c)
	if !ok {
		handler.RespondError(c, apperrors.Unauthorized(nil))
	}
	return a, ok
}

func appointmentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.RespondError(c, apperrors.BadRequest("invalid appointment ID", err))
		return uuid.Nil, false
	}
	return id, true
}

func bindingFailed(c *gin.Context, err error) {
	details := middleware.BindingErrors(err)
	handler.RespondError(c, apperrors.Unprocessable(details[0], details))
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req model.AppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingFailed(c, err)
		return
	}

	apt, err := h.service.Create(c.Request.Context(), a, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(apt))
}

func (h *Handler) GetAppointment(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := appointmentID(c)
	if !ok {
		return
	}

	apt, err := h.service.Get(c.Request.Context(), a, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) ListAppointments(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindingFailed(c, err)
		return
	}

	filters := model.AppointmentFilters{
		Status:     model.AppointmentStatus(q.Status),
		StartDate:  q.StartDate,
		EndDate:    q.EndDate,
		Pagination: model.Pagination{Page: q.Page, PageSize: q.PageSize},
	}
	items, total, err := h.service.List(c.Request.Context(), a, filters)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(handler.ListResponse{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: filters.Limit(),
	}))
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := appointmentID(c)
	if !ok {
		return
	}

	var req model.AppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingFailed(c, err)
		return
	}

	apt, err := h.service.Update(c.Request.Context(), a, id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := appointmentID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), a, id); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, &handler.Response{Status: "success", Message: "appointment deleted"})
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := appointmentID(c)
	if !ok {
		return
	}

	var req model.CancelAppointmentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindingFailed(c, err)
			return
		}
	}

	apt, err := h.service.Cancel(c.Request.Context(), a, id, req.Reason)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := appointmentID(c)
	if !ok {
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingFailed(c, err)
		return
	}

	apt, err := h.service.UpdateStatus(c.Request.Context(), a, id, req.Status, req.Reason)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

// Availability returns the capacity of a date. With a time it also reports
// the validation errors of that date and time.
func (h *Handler) Availability(c *gin.Context) {
	var q availabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindingFailed(c, err)
		return
	}

	if q.Time != "" {
		avail, err := h.service.Check(c.Request.Context(), q.Date, q.Time)
		if err != nil {
			handler.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, handler.NewSuccessResponse(avail))
		return
	}

	summary, err := h.service.Availability(c.Request.Context(), q.Date)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(summary))
}

// Validate reports every rule a candidate date and time break without booking
// or reading the store. An empty errors list means the slot can be requested.
func (h *Handler) Validate(c *gin.Context) {
	var req model.ValidateTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(model.ValidationResult{
		Errors: h.service.Validate(req.Date, req.Time),
	}))
}
