package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/pdfbot-go/store"
	"github.com/moyoez/pdfbot-go/tool"
)

type ResultController struct {
	store *store.Store
}

func NewResultController(st *store.Store) *ResultController {
	return &ResultController{store: st}
}

// HandleResult serves the active file of a user's session as a download.
// GET /api/bot/v1/result?user=<id>
func (ctrl *ResultController) HandleResult(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing or invalid parameter: user"))
		return
	}
	sess, ok := ctrl.store.Peek(userID)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("No session for this user"))
		return
	}
	rec, ok := sess.ActiveSnapshot()
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Session holds no file"))
		return
	}
	info, err := tool.StatArtifact(rec.Path)
	if err != nil {
		tool.DefaultLogger.Warnf("Result of user %d is gone: %v", userID, err)
		c.JSON(http.StatusGone, tool.FastReturnError("Result file is no longer available"))
		return
	}
	tool.DefaultLogger.Debugf("Serving result %s (%s) to user %d", rec.Name, tool.HumanSize(info.Size), userID)
	c.FileAttachment(rec.Path, rec.Name)
}

// HandleSession reports the stage and files of a user's session.
// GET /api/bot/v1/session?user=<id>
func (ctrl *ResultController) HandleSession(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing or invalid parameter: user"))
		return
	}
	sess, ok := ctrl.store.Peek(userID)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("No session for this user"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(gin.H{
		"stage": sess.Stage().String(),
		"files": sess.Snapshot(),
	}))
}
