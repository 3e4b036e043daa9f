package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"focusfriends/backend/internal/middleware"
	"focusfriends/backend/internal/service"
)

type TimerHandler struct {
	focusService *service.FocusService
}

type startRequest struct {
	Subject string `json:"subject"`
}

type durationRequest struct {
	Seconds int `json:"seconds"`
}

func NewTimerHandler(focusService *service.FocusService) *TimerHandler {
	return &TimerHandler{focusService: focusService}
}

func (h *TimerHandler) GetState(c *gin.Context) {
	state, apiErr := h.focusService.GetState(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) Start(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeInvalidJSON(c)
			return
		}
	}

	state, apiErr := h.focusService.Start(c.Request.Context(), middleware.UserID(c), req.Subject)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) Pause(c *gin.Context) {
	state, apiErr := h.focusService.Pause(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) Resume(c *gin.Context) {
	state, apiErr := h.focusService.Resume(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) Stop(c *gin.Context) {
	state, apiErr := h.focusService.Stop(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) SetDuration(c *gin.Context) {
	var req durationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	state, apiErr := h.focusService.SetDuration(c.Request.Context(), middleware.UserID(c), req.Seconds)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) GetHistory(c *gin.Context) {
	limit := 50
	rawLimit := c.Query("limit")
	if rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			limit = parsed
		}
	}

	sessions, apiErr := h.focusService.History(c.Request.Context(), middleware.UserID(c), limit)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
