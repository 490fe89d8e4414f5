package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/moyoez/pdfbot-go/tool"
)

const (
	defaultQRSize = 256
	maxQRSize     = 512
	maxQRData     = 2048
)

// GenerateQRCode renders data as a PNG QR code, so an authorization link can be opened on a phone.
// GET /api/bot/v1/qr?size=256x256&data=<url-encoded-content>
func GenerateQRCode(c *gin.Context) {
	data := c.Query("data")
	if data == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing required parameter: data"))
		return
	}
	if len(data) > maxQRData {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Parameter data is too long"))
		return
	}

	size := parseSize(c.Query("size"))
	if size <= 0 {
		size = defaultQRSize
	}
	size = min(size, maxQRSize)

	png, err := qrcode.Encode(data, qrcode.Medium, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to encode QR code: "+err.Error()))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// parseSize accepts "200x200" or "200".
func parseSize(s string) int {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "x"); idx > 0 {
		s = strings.TrimSpace(s[:idx])
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
