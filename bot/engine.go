// Package bot drives one conversation turn per inbound event: it classifies the
// event, consults the dialogue table, runs the chosen action and collects replies.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/moyoez/pdfbot-go/actions"
	"github.com/moyoez/pdfbot-go/cloud"
	"github.com/moyoez/pdfbot-go/dialogue"
	"github.com/moyoez/pdfbot-go/store"
	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

type Options struct {
	Store      *store.Store
	Dispatcher *actions.Dispatcher
	Batch      *actions.Batch
	// Gate is nil when cloud export is disabled.
	Gate    *cloud.Gate
	Fetcher Fetcher
	Hub     types.NotifyHub

	// ResultURL links the local download of a finished result. Optional.
	ResultURL func(userID int64) string
	// QRURL links a QR rendering of data. Optional.
	QRURL func(data string) string
}

// Engine is safe for concurrent use; turns of the same user run one at a time.
type Engine struct {
	store     *store.Store
	dispatch  *actions.Dispatcher
	batch     *actions.Batch
	gate      *cloud.Gate
	fetch     Fetcher
	hub       types.NotifyHub
	resultURL func(int64) string
	qrURL     func(string) string

	machine dialogue.Machine
	locks   *userLocks
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Dispatcher == nil {
		return nil, errors.New("bot engine needs a store and a dispatcher")
	}
	if opts.Batch == nil {
		opts.Batch = actions.NewBatch(opts.Dispatcher, 0)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = HTTPFetcher{}
	}
	return &Engine{
		store:     opts.Store,
		dispatch:  opts.Dispatcher,
		batch:     opts.Batch,
		gate:      opts.Gate,
		fetch:     opts.Fetcher,
		hub:       opts.Hub,
		resultURL: opts.ResultURL,
		qrURL:     opts.QRURL,
		locks:     newUserLocks(),
	}, nil
}

// Handle processes one event and returns the replies with the resulting stage.
// Action failures are reported as replies; only a malformed event is an error.
func (e *Engine) Handle(ctx context.Context, ev *types.Event) (types.EventResponse, error) {
	if ev == nil || ev.UserID == 0 {
		return types.EventResponse{}, types.ValidationError("event carries no user id", nil)
	}
	unlock := e.locks.lock(ev.UserID)
	defer unlock()

	t := &turn{e: e, ctx: ctx, ev: ev}
	stage := t.run()
	tool.DefaultLogger.Debugf("User %d %s event handled, stage %s", ev.UserID, ev.Kind, stage)

	for _, r := range t.replies {
		e.publish(r)
	}
	return types.EventResponse{Stage: stage.String(), Replies: t.replies}, nil
}

func (e *Engine) publish(r types.Reply) {
	if e.hub == nil {
		return
	}
	data := map[string]any{}
	if len(r.Buttons) > 0 {
		data["buttons"] = r.Buttons
	}
	if r.Document != "" {
		data["document"] = r.Document
	}
	e.hub.Publish(r.UserID, &types.Notification{
		Type:    types.NotifyTypeReply,
		Message: r.Text,
		Data:    data,
	})
}

// turn is the state of one Handle call.
type turn struct {
	e       *Engine
	ctx     context.Context
	ev      *types.Event
	sess    *store.Session
	replies []types.Reply
}

func (t *turn) say(text string, buttons [][]types.Button) {
	t.replies = append(t.replies, types.Reply{UserID: t.ev.UserID, Text: text, Buttons: buttons})
}

// load returns the open session, or nil.
func (t *turn) load() *store.Session {
	if t.sess == nil {
		if sess, ok := t.e.store.Get(t.ev.UserID); ok {
			t.sess = sess
		}
	}
	return t.sess
}

func (t *turn) stage() types.Stage {
	if sess := t.load(); sess != nil {
		return sess.Stage()
	}
	return types.StageUpload
}

func (t *turn) setStage(stage types.Stage) types.Stage {
	if t.sess != nil {
		t.sess.SetStage(stage)
	}
	return stage
}

// reject reports a transition the table refused and moves to the stage it named.
func (t *turn) reject(next types.Stage, err error) types.Stage {
	t.say(errorText(err), nil)
	if next == types.StageActionChoice {
		t.menu()
	}
	return t.setStage(next)
}

// failed reports an action failure and rolls the stage back by error kind.
func (t *turn) failed(at types.Stage, err error) types.Stage {
	next := dialogue.AfterFailure(at, err)
	tool.DefaultLogger.Warnf("User %d: %s failed: %v", t.ev.UserID, at, err)
	t.say(errorText(err), nil)
	switch next {
	case types.StageEnded:
		t.e.store.End(t.ev.UserID)
		t.sess = nil
		t.say("Your session was discarded. Send /start to begin again.", nil)
		return next
	case types.StageActionChoice:
		t.menu()
	}
	return t.setStage(next)
}

// menu shows the action menu of the active record.
func (t *turn) menu() {
	if t.sess == nil {
		return
	}
	if rec, ok := t.sess.Active(); ok {
		t.say(menuText(rec), actionMenu(rec.Kind))
	}
}

func (t *turn) active() *types.FileRecord {
	if t.sess == nil {
		return nil
	}
	rec, _ := t.sess.Active()
	return rec
}

func (t *turn) run() types.Stage {
	switch t.ev.Kind {
	case types.EventCommand:
		return t.command(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t.ev.Text), "/")))
	case types.EventDocument, types.EventPhoto:
		return t.file()
	case types.EventCallback:
		return t.callback()
	case types.EventText:
		return t.text()
	}
	t.say("Unsupported message.", nil)
	return t.stage()
}

func (t *turn) command(name string) types.Stage {
	switch name {
	case "start":
		if t.e.store.End(t.ev.UserID) {
			tool.DefaultLogger.Infof("User %d restarted, previous session reclaimed", t.ev.UserID)
		}
		t.say(greeting, nil)
		return types.StageUpload
	case "cancel":
		t.e.store.End(t.ev.UserID)
		t.say("Operation cancelled. Send /start to begin again.", nil)
		return types.StageEnded
	case "status":
		sess := t.load()
		if sess == nil {
			t.say(statusText(types.StageUpload, nil), nil)
			return types.StageUpload
		}
		t.say(statusText(sess.Stage(), sess.Snapshot()), nil)
		return sess.Stage()
	case "process":
		return t.process()
	}
	t.say("Unknown command. Use /start, /status, /process or /cancel.", nil)
	return t.stage()
}

func (t *turn) process() types.Stage {
	count := 0
	if sess := t.load(); sess != nil {
		count = sess.FileCount()
	}
	next, err := t.e.machine.Next(t.stage(), dialogue.Input{Kind: dialogue.InputProcess, FileCount: count})
	if err != nil {
		return t.reject(next, err)
	}
	t.say("🔄 Processing "+plural(count, "file")+". Choose a batch action:", batchMenu())
	return t.setStage(next)
}
