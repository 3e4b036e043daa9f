package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"focusfriends/backend/internal/middleware"
	"focusfriends/backend/internal/service"
)

type SocialHandler struct {
	socialService *service.SocialService
	nudgeService  *service.NudgeService
}

type nudgeRequest struct {
	ReceiverID string `json:"receiverId"`
	Type       string `json:"type"`
}

func NewSocialHandler(socialService *service.SocialService, nudgeService *service.NudgeService) *SocialHandler {
	return &SocialHandler{socialService: socialService, nudgeService: nudgeService}
}

func (h *SocialHandler) Friends(c *gin.Context) {
	friends, apiErr := h.socialService.Friends(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

func (h *SocialHandler) Feed(c *gin.Context) {
	events, apiErr := h.socialService.Feed(c.Request.Context())
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *SocialHandler) Leaderboard(c *gin.Context) {
	board, apiErr := h.socialService.Leaderboard(c.Request.Context())
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (h *SocialHandler) SendNudge(c *gin.Context) {
	var req nudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	nudge, apiErr := h.nudgeService.Send(c.Request.Context(), middleware.UserID(c), req.ReceiverID, req.Type)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"nudge": nudge})
}
