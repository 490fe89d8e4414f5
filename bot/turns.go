package bot

import (
	"fmt"
	"os"
	"strings"

	"github.com/moyoez/pdfbot-go/actions"
	"github.com/moyoez/pdfbot-go/dialogue"
	"github.com/moyoez/pdfbot-go/types"
)

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// file handles an uploaded document or photo.
func (t *turn) file() types.Stage {
	sess := t.load()
	if sess != nil && sess.Stage() == types.StageEnded {
		// a finished conversation is kept until the next upload starts a new one
		t.e.store.End(t.ev.UserID)
		t.sess, sess = nil, nil
	}
	if sess != nil {
		switch sess.Stage() {
		case types.StageInsertPage:
			return t.insertFrom()
		case types.StageWatermark:
			return t.watermarkFrom()
		}
	}

	stage := t.stage()
	count := 0
	if sess != nil {
		count = sess.FileCount()
	}
	next, err := t.e.machine.Next(stage, dialogue.Input{Kind: dialogue.InputFile, FileCount: count + 1})
	if err != nil {
		return t.reject(next, err)
	}

	if sess == nil {
		sess = t.e.store.CreateSession(t.ev.UserID)
		t.sess = sess
	}
	name := t.ev.FileName
	if t.ev.Kind == types.EventPhoto {
		name = sess.NextPhotoName()
	}
	body, err := t.e.attachment(t.ctx, t.ev)
	if err != nil {
		return t.uploadFailed(stage, err)
	}
	rec, err := t.e.store.AddFile(t.ctx, sess, body, name)
	body.Close()
	if err != nil {
		return t.uploadFailed(stage, err)
	}

	count = sess.FileCount()
	switch {
	case count == 1:
		t.say(menuText(rec), actionMenu(rec.Kind))
	case next == types.StageBatchProcess:
		t.say(fmt.Sprintf("📚 %s added to batch! Total files: %d", rec.Name, count), batchMenu())
	default:
		t.say(fmt.Sprintf("📚 %s added to batch! Total files: %d\nSend more files or /process to start batch processing.", rec.Name, count), nil)
	}
	return t.setStage(next)
}

func (t *turn) uploadFailed(stage types.Stage, err error) types.Stage {
	t.say(errorText(err), nil)
	if types.KindOf(err) == types.ErrorKindResource {
		t.e.store.End(t.ev.UserID)
		t.sess = nil
		t.say("Your session was discarded. Send /start to begin again.", nil)
		return types.StageEnded
	}
	return t.setStage(stage)
}

// saveAttachment stores the event file next to the session files without tracking it.
func (t *turn) saveAttachment(fallbackName string) (string, error) {
	name := t.ev.FileName
	if t.ev.Kind == types.EventPhoto || name == "" {
		name = fallbackName
	}
	body, err := t.e.attachment(t.ctx, t.ev)
	if err != nil {
		return "", err
	}
	defer body.Close()
	return t.e.store.SaveAttachment(t.ctx, t.sess, body, name)
}

// insertFrom inserts the uploaded file; the caption holds the position.
func (t *turn) insertFrom() types.Stage {
	next, err := t.e.machine.Next(types.StageInsertPage, dialogue.Input{Kind: dialogue.InputFile})
	if err != nil {
		return t.reject(next, err)
	}
	rec := t.active()
	n, err := t.e.dispatch.PageCount(t.ctx, rec)
	if err != nil {
		return t.failed(types.StageInsertPage, err)
	}
	after, err := dialogue.ParseInsertPosition(t.ev.Text, n)
	if err != nil {
		return t.failed(types.StageInsertPage, err)
	}
	path, err := t.saveAttachment("insert.jpg")
	if err != nil {
		return t.failed(types.StageInsertPage, err)
	}
	defer os.Remove(path)
	return t.apply(types.StageInsertPage, next, rec, types.ActionInsert, actions.Params{InsertPath: path, InsertAfter: after})
}

// watermarkFrom stamps the uploaded image on every page.
func (t *turn) watermarkFrom() types.Stage {
	mode := t.sess.WatermarkMode()
	next, err := t.e.machine.Next(types.StageWatermark, dialogue.Input{Kind: dialogue.InputFile, WatermarkChosen: mode != types.WatermarkNone})
	if err != nil {
		return t.reject(next, err)
	}
	if mode == types.WatermarkText {
		return t.failed(types.StageWatermark, types.ValidationError("send the watermark text, or choose image watermark", nil))
	}
	path, err := t.saveAttachment("watermark.jpg")
	if err != nil {
		return t.failed(types.StageWatermark, err)
	}
	if kind, _ := types.KindFromName(path); kind != types.KindImage {
		os.Remove(path)
		return t.failed(types.StageWatermark, types.ValidationError("the watermark must be an image", types.ErrUnsupportedKind))
	}
	defer os.Remove(path)
	return t.apply(types.StageWatermark, next, t.active(), types.ActionWatermark, actions.Params{WatermarkImage: path})
}

// apply runs a record action; at is the stage that collected its input.
func (t *turn) apply(at, next types.Stage, rec *types.FileRecord, action types.ActionID, p actions.Params) types.Stage {
	res, err := t.e.dispatch.Apply(t.ctx, t.sess, rec, action, p)
	if err != nil {
		return t.failed(at, err)
	}
	if action == types.ActionWatermark {
		t.sess.SetWatermarkMode(types.WatermarkNone)
	}

	switch action {
	case types.ActionDone:
		link := res.Link
		if link == "" && t.e.resultURL != nil {
			link = t.e.resultURL(t.ev.UserID)
		}
		t.replies = append(t.replies, types.Reply{
			UserID:   t.ev.UserID,
			Text:     fmt.Sprintf("📤 Here is your result: %s", res.Record.Name),
			Document: link,
		})
		t.say("Send /start to process another document.", nil)
		return t.setStage(next)
	case types.ActionCloud:
		t.say("✅ File saved to cloud storage!\n\n🔗 View file: "+res.Link, nil)
	case types.ActionBatch:
		var buttons [][]types.Button
		if t.sess.FileCount() >= 2 {
			buttons = batchMenu()
		}
		t.say(res.Message, buttons)
		return t.setStage(next)
	default:
		t.say("✅ "+res.Message+" Choose another action or get result.", nil)
	}
	t.setStage(next)
	if next == types.StageActionChoice {
		t.menu()
	}
	return next
}

func (t *turn) callback() types.Stage {
	if t.load() == nil {
		t.say("Send a PDF or image first.", nil)
		return types.StageUpload
	}
	data := strings.TrimSpace(t.ev.Text)
	if a, ok := types.ParseActionID(data); ok {
		return t.action(a)
	}
	if b, ok := types.ParseBatchActionID(data); ok {
		return t.batchChoice(b)
	}
	if m, ok := types.ParseWatermarkMode(data); ok {
		return t.watermarkType(m)
	}
	return t.reject(t.stage(), types.ValidationError(fmt.Sprintf("unknown option %q", data), types.ErrUnknownAction))
}

func (t *turn) action(a types.ActionID) types.Stage {
	stage := t.sess.Stage()
	rec := t.active()
	in := dialogue.Input{
		Kind:       dialogue.InputAction,
		Action:     a,
		FileCount:  t.sess.FileCount(),
		Authorized: t.e.gate == nil || t.e.gate.Authorized(t.sess),
	}
	if rec != nil {
		in.FileKind = rec.Kind
	}
	next, err := t.e.machine.Next(stage, in)
	if err != nil {
		return t.reject(next, err)
	}

	switch a {
	case types.ActionDelete, types.ActionRearrange:
		n, err := t.e.dispatch.PageCount(t.ctx, rec)
		if err != nil {
			return t.failed(types.StageActionChoice, err)
		}
		t.say(fmt.Sprintf("%s (document has %s)", prompts[a], plural(n, "page")), nil)
		return t.setStage(next)
	case types.ActionInsert, types.ActionEncrypt:
		t.say(prompts[a], nil)
		return t.setStage(next)
	case types.ActionWatermark:
		t.sess.SetWatermarkMode(types.WatermarkNone)
		t.say("Choose watermark type:", watermarkMenu())
		return t.setStage(next)
	case types.ActionCloud:
		if next == types.StageCloudSave {
			return t.beginAuth(next)
		}
	case types.ActionOCR:
		t.say("Performing OCR... This may take a while...", nil)
	}
	return t.apply(types.StageActionChoice, next, rec, a, actions.Params{})
}

func (t *turn) beginAuth(next types.Stage) types.Stage {
	authURL, err := t.e.gate.Begin(t.ev.UserID)
	if err != nil {
		return t.failed(types.StageActionChoice, err)
	}
	text := "🔑 Please authorize access to cloud storage:\n" + authURL
	if t.e.qrURL != nil {
		text += "\n\nQR code: " + t.e.qrURL(authURL)
	}
	text += "\n\nAfter authorization, send the code you received."
	t.say(text, nil)
	return t.setStage(next)
}

func (t *turn) watermarkType(m types.WatermarkMode) types.Stage {
	next, err := t.e.machine.Next(t.sess.Stage(), dialogue.Input{Kind: dialogue.InputWatermarkType})
	if err != nil {
		return t.reject(next, err)
	}
	t.sess.SetWatermarkMode(m)
	if m == types.WatermarkImage {
		t.say("Send the watermark image:", nil)
	} else {
		t.say("Enter watermark text:", nil)
	}
	return t.setStage(next)
}

func (t *turn) batchChoice(b types.BatchActionID) types.Stage {
	next, err := t.e.machine.Next(t.sess.Stage(), dialogue.Input{Kind: dialogue.InputBatchChoice, Batch: b})
	if err != nil {
		return t.reject(next, err)
	}
	if b.NeedsParameter() {
		t.sess.SetPendingBatch(b)
		t.say("Enter the password for all files:", nil)
		return t.setStage(next)
	}
	return t.runBatch(b, "", next)
}

func (t *turn) runBatch(b types.BatchActionID, password string, next types.Stage) types.Stage {
	res, err := t.e.batch.Run(t.ctx, t.sess, b, password)
	t.sess.SetPendingBatch("")
	if err != nil {
		return t.failed(types.StageBatchProcess, err)
	}
	t.say("✅ "+res.Message, nil)
	t.setStage(next)
	t.menu()
	return next
}

// text handles typed parameters and authorization codes.
func (t *turn) text() types.Stage {
	sess := t.load()
	if sess == nil {
		t.say("Send a PDF or image to get started.", nil)
		return types.StageUpload
	}
	stage := sess.Stage()
	in := dialogue.Input{
		Kind:            dialogue.InputParams,
		WatermarkChosen: sess.WatermarkMode() != types.WatermarkNone,
		BatchPending:    sess.PendingBatch() != "",
	}
	if stage == types.StageCloudSave {
		in.Kind = dialogue.InputCode
	}
	next, err := t.e.machine.Next(stage, in)
	if err != nil {
		return t.reject(next, err)
	}

	text := strings.TrimSpace(t.ev.Text)
	rec := t.active()
	switch stage {
	case types.StageDeletePages:
		n, err := t.e.dispatch.PageCount(t.ctx, rec)
		if err != nil {
			return t.failed(stage, err)
		}
		pages, err := dialogue.ParsePageSelection(text, n)
		if err != nil {
			return t.failed(stage, err)
		}
		return t.apply(stage, next, rec, types.ActionDelete, actions.Params{Pages: pages})
	case types.StageRearrange:
		n, err := t.e.dispatch.PageCount(t.ctx, rec)
		if err != nil {
			return t.failed(stage, err)
		}
		order, err := dialogue.ParsePermutation(text, n)
		if err != nil {
			return t.failed(stage, err)
		}
		return t.apply(stage, next, rec, types.ActionRearrange, actions.Params{Order: order})
	case types.StageEncrypt:
		op, password, err := dialogue.ParseCryptoParams(text)
		if err != nil {
			return t.failed(stage, err)
		}
		return t.apply(stage, next, rec, types.ActionEncrypt, actions.Params{Op: op, Password: password})
	case types.StageInsertPage:
		// the position travels in the caption of the uploaded file
		return t.failed(stage, types.ValidationError(prompts[types.ActionInsert], nil))
	case types.StageWatermark:
		if sess.WatermarkMode() == types.WatermarkImage {
			return t.failed(stage, types.ValidationError("send the watermark image, or choose text watermark", nil))
		}
		return t.apply(stage, next, rec, types.ActionWatermark, actions.Params{WatermarkText: text})
	case types.StageCloudSave:
		return t.completeAuth(next, rec, text)
	case types.StageBatchProcess:
		password, err := dialogue.ParsePassword(text)
		if err != nil {
			return t.failed(stage, err)
		}
		return t.runBatch(sess.PendingBatch(), password, next)
	}
	return t.reject(stage, types.ValidationError("unexpected text", dialogue.ErrUnexpectedInput))
}

// completeAuth redeems the pasted code then uploads the active record.
func (t *turn) completeAuth(next types.Stage, rec *types.FileRecord, text string) types.Stage {
	code, state, err := dialogue.ParseAuthCode(text)
	if err != nil {
		return t.failed(types.StageCloudSave, err)
	}
	if t.e.gate == nil {
		return t.failed(types.StageCloudSave, types.ExternalServiceError("cloud export is disabled", types.ErrNotAuthorized))
	}
	if err := t.e.gate.Complete(t.ctx, t.sess, code, state); err != nil {
		return t.failed(types.StageCloudSave, err)
	}
	t.say("✅ Authorization successful!", nil)
	return t.apply(types.StageCloudSave, next, rec, types.ActionCloud, actions.Params{})
}
