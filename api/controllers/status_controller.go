package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatusInfo is what GET /status reports besides the live session count.
type StatusInfo struct {
	CloudEnabled    bool `json:"cloud_enabled"`
	DeliveryEnabled bool `json:"delivery_enabled"`
	OCREnabled      bool `json:"ocr_enabled"`
	NotifyWSEnabled bool `json:"notify_ws_enabled"`
}

// UserStatus reports that the bot is running and which optional features are on.
// GET /api/bot/v1/status
func UserStatus(info StatusInfo, sessions func() int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"running":           true,
			"sessions":          sessions(),
			"cloud_enabled":     info.CloudEnabled,
			"delivery_enabled":  info.DeliveryEnabled,
			"ocr_enabled":       info.OCREnabled,
			"notify_ws_enabled": info.NotifyWSEnabled,
		})
	}
}
