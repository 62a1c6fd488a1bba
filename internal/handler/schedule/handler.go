// Package schedule exposes the scheduling engine over HTTP. The caller
// identifies itself with X-User-ID and X-User-Role headers; upstream
// authentication is terminated before requests reach this service.
package schedule

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/legalconnect/scheduler/internal/engine"
	"github.com/legalconnect/scheduler/internal/handler"
	"github.com/legalconnect/scheduler/internal/model"
	"github.com/legalconnect/scheduler/internal/schedule"
)

type Handler struct {
	sessions *engine.Manager
}

func NewHandler(sessions *engine.Manager) *Handler {
	return &Handler{sessions: sessions}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/cases/:id/select", h.SelectCase)
	r.POST("/date", h.SelectDate)
	r.GET("/slots", h.Slots)
	r.POST("/slots/toggle", h.ToggleSlot)
	r.GET("/selection", h.Selection)
	r.POST("/book", h.Book)
	r.POST("/refresh", h.Refresh)
	r.GET("/appointments", h.Appointments)
	r.GET("/appointments/day", h.DayAppointments)
	r.GET("/appointments/upcoming", h.Upcoming)
	r.POST("/appointments/:id/status", h.SetStatus)
	r.PUT("/appointments/:id/reschedule", h.Reschedule)
	r.POST("/appointments/:id/cancel", h.Cancel)
}

func (h *Handler) session(c *gin.Context) (*engine.Session, bool) {
	userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("missing or invalid X-User-ID header"))
		return nil, false
	}
	role := model.Role(strings.ToUpper(c.GetHeader("X-User-Role")))
	if role == "" {
		role = model.RoleCitizen
	}
	return h.sessions.Session(userID, role), true
}

func (h *Handler) SelectCase(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	caseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid case ID"))
		return
	}

	cc, err := s.SelectCase(c.Request.Context(), caseID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cc))
}

type selectDateRequest struct {
	Date string `json:"date" binding:"required"`
}

func (h *Handler) SelectDate(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req selectDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := s.SelectDate(c.Request.Context(), req.Date); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"date": req.Date}))
}

// Slots returns the current day's grid. loading=true means a fetch is
// in flight and the payload is the optimistic view; poll again or pass
// wait=true to block for the settled grid. period filters to
// morning/noon/evening; grouped=true returns three-hour bands.
func (h *Handler) Slots(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var (
		slots   []model.TimeSlot
		loading bool
		err     error
	)
	if c.Query("wait") == "true" {
		slots, err = s.SlotsWait(c.Request.Context())
	} else {
		slots, loading, err = s.Slots(c.Request.Context())
	}
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	if p := c.Query("period"); p != "" {
		slots = schedule.FilterByPeriod(slots, schedule.TimePeriod(p))
	}

	data := gin.H{"slots": slots, "loading": loading}
	if c.Query("grouped") == "true" {
		data["bands"] = schedule.GroupByBand(slots)
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(data))
}

type toggleRequest struct {
	Time string `json:"time" binding:"required"`
}

func (h *Handler) ToggleSlot(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	selection, err := s.Toggle(c.Request.Context(), req.Time)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"selection": selection}))
}

func (h *Handler) Selection(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"selection": s.Selection()}))
}

type bookRequest struct {
	Title string `json:"title" binding:"required"`
	Notes string `json:"notes"`
}

func (h *Handler) Book(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	apt, err := s.Book(c.Request.Context(), req.Title, req.Notes)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(apt))
}

// Refresh is the in-band counterpart of the broker signal: the hosting
// app tells the engine some other view mutated the calendar.
func (h *Handler) Refresh(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.OnExternalRefresh(c.Request.Context())
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) DayAppointments(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(s.DayAppointments()))
}

func (h *Handler) Appointments(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	appts, err := s.RefreshAppointments(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(appts))
}

func (h *Handler) Upcoming(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	c.JSON(http.StatusOK, handler.NewSuccessResponse(s.Upcoming(limit)))
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) SetStatus(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	apt, err := s.Decide(c.Request.Context(), id, model.AppointmentStatus(strings.ToUpper(req.Status)))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

type rescheduleRequest struct {
	Date string `json:"date" binding:"required"`
	Time string `json:"time" binding:"required"`
}

func (h *Handler) Reschedule(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := s.Reschedule(c.Request.Context(), id, req.Date, req.Time); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"id": id, "date": req.Date, "time": req.Time}))
}

func (h *Handler) Cancel(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	if err := s.Cancel(c.Request.Context(), id); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"id": id, "status": model.AppointmentStatusCancelled}))
}
