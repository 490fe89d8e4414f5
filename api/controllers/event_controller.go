package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

// maxEventBody bounds a JSON event; attachments travel as multipart or by URL.
const maxEventBody = 1 << 20

// Handler runs one bot turn.
type Handler interface {
	Handle(ctx context.Context, ev *types.Event) (types.EventResponse, error)
}

// Limiter decides whether a user may send another event.
type Limiter interface {
	Allow(userID int64) bool
}

type EventController struct {
	bot     Handler
	limiter Limiter
}

func NewEventController(bot Handler, limiter Limiter) *EventController {
	return &EventController{bot: bot, limiter: limiter}
}

// HandleEvent accepts one chat event and answers with the bot replies.
// POST /api/bot/v1/events
//
// The body is either a JSON types.Event or multipart/form-data with the fields
// userId, kind, text, fileName, fileUrl and an optional "file" part.
func (ctrl *EventController) HandleEvent(c *gin.Context) {
	ev, closer, err := readEvent(c)
	if closer != nil {
		defer closer.Close()
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
		return
	}
	if ev.UserID == 0 {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing required field: userId"))
		return
	}
	if ctrl.limiter != nil && !ctrl.limiter.Allow(ev.UserID) {
		c.JSON(http.StatusTooManyRequests, tool.FastReturnError("Too many events, slow down"))
		return
	}

	resp, err := ctrl.bot.Handle(c.Request.Context(), ev)
	if err != nil {
		status := http.StatusInternalServerError
		if types.KindOf(err) == types.ErrorKindValidation {
			status = http.StatusBadRequest
		}
		c.JSON(status, tool.FastReturnError(types.UserMessage(err)))
		return
	}
	if resp.Replies == nil {
		resp.Replies = []types.Reply{}
	}
	c.JSON(http.StatusOK, resp)
}

func readEvent(c *gin.Context) (*types.Event, io.Closer, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return readMultipartEvent(c)
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody+1))
	if err != nil {
		return nil, nil, err
	}
	if len(body) > maxEventBody {
		return nil, nil, errors.New("event body too large")
	}
	var ev types.Event
	if err := sonic.Unmarshal(body, &ev); err != nil {
		return nil, nil, errors.New("invalid event body: " + err.Error())
	}
	return &ev, nil, nil
}

func readMultipartEvent(c *gin.Context) (*types.Event, io.Closer, error) {
	ev := &types.Event{
		Kind:     types.EventKind(c.PostForm("kind")),
		Text:     c.PostForm("text"),
		FileName: c.PostForm("fileName"),
		FileURL:  c.PostForm("fileUrl"),
	}
	if raw := c.PostForm("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, nil, errors.New("invalid userId")
		}
		ev.UserID = id
	}

	header, err := c.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return ev, nil, nil
	case err != nil:
		return nil, nil, errors.New("invalid file part: " + err.Error())
	}
	f, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	ev.File = f
	if ev.FileName == "" {
		ev.FileName = header.Filename
	}
	if ev.Kind == "" {
		ev.Kind = types.EventDocument
	}
	return ev, f, nil
}
