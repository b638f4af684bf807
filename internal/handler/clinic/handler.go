package clinic

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/model"
)

type HoursProvider interface {
	Hours() model.ClinicHours
}

type Handler struct {
	hours HoursProvider
}

func NewHandler(hours HoursProvider) *Handler {
	return &Handler{hours: hours}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/clinic/hours", h.GetHours)
}

// GetHours is public so the booking form can render its constraints before login.
func (h *Handler) GetHours(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.hours.Hours()))
}
