// Package actions applies menu actions to a session's records.
package actions

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/moyoez/pdfbot-go/docops"
	"github.com/moyoez/pdfbot-go/ocr"
	"github.com/moyoez/pdfbot-go/store"
	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

const DefaultTimeout = 10 * time.Minute

// Params carries the per-action input. Only the fields of the chosen action are read.
type Params struct {
	Pages []int // delete
	Order []int // rearrange

	Op       types.CryptoOp // encrypt
	Password string

	InsertPath  string // insert: document or image holding the new pages
	InsertAfter int    // insert: 0 = front

	WatermarkText  string
	WatermarkImage string
}

// Result is what an applied action reports back.
type Result struct {
	Action  types.ActionID
	Record  *types.FileRecord // copy of the record after the action
	Changed bool              // a new artifact replaced the previous one
	Link    string            // cloud view link or delivery URL
	Message string
}

// Exporter uploads a record to cloud storage using the session's credential.
// It returns types.ErrNotAuthorized when the session has none.
type Exporter interface {
	Export(ctx context.Context, sess *store.Session, rec *types.FileRecord) (string, error)
}

// Deliverer publishes the final artifact and returns a download URL.
type Deliverer interface {
	Deliver(ctx context.Context, sess *store.Session, rec *types.FileRecord) (string, error)
}

// artifact is a handler's output before it is committed to the store.
type artifact struct {
	path    string // empty when the action produced no new file
	name    string
	kind    types.FileKind
	link    string
	message string
}

type handler func(ctx context.Context, sess *store.Session, rec *types.FileRecord, p Params) (artifact, error)

type Options struct {
	Store     *store.Store
	Library   docops.Library
	OCR       *ocr.Service
	Exporter  Exporter  // nil disables cloud export
	Deliverer Deliverer // nil means results are served locally
	Timeout   time.Duration
}

// Dispatcher maps every types.ActionID onto its handler.
type Dispatcher struct {
	store     *store.Store
	lib       docops.Library
	ocr       *ocr.Service
	exporter  Exporter
	deliverer Deliverer
	timeout   time.Duration
	handlers  map[types.ActionID]handler
}

func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Store == nil || opts.Library == nil {
		return nil, fmt.Errorf("dispatcher needs a store and a document library")
	}
	if opts.OCR == nil {
		opts.OCR = &ocr.Service{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	d := &Dispatcher{
		store:     opts.Store,
		lib:       opts.Library,
		ocr:       opts.OCR,
		exporter:  opts.Exporter,
		deliverer: opts.Deliverer,
		timeout:   opts.Timeout,
	}
	d.handlers = map[types.ActionID]handler{
		types.ActionDelete:     d.deletePages,
		types.ActionInsert:     d.insertPages,
		types.ActionRearrange:  d.rearrange,
		types.ActionCompress:   d.compress,
		types.ActionOCR:        d.recognize,
		types.ActionEncrypt:    d.crypt,
		types.ActionWatermark:  d.watermark,
		types.ActionImageToPDF: d.imageToPDF,
		types.ActionCloud:      d.export,
		types.ActionBatch:      d.batch,
		types.ActionDone:       d.deliver,
	}
	for _, id := range types.AllActions() {
		if _, ok := d.handlers[id]; !ok {
			return nil, fmt.Errorf("no handler for action %q", id)
		}
	}
	return d, nil
}

// Apply runs action on rec and commits the new artifact on success.
// On failure the record and its artifact are left untouched.
func (d *Dispatcher) Apply(ctx context.Context, sess *store.Session, rec *types.FileRecord, action types.ActionID, p Params) (Result, error) {
	h, ok := d.handlers[action]
	if !ok {
		return Result{}, types.ValidationError(fmt.Sprintf("unknown action %q", action), types.ErrUnknownAction)
	}
	if rec == nil {
		return Result{}, types.ValidationError("upload a file first", types.ErrNoFiles)
	}
	if !action.LegalFor(rec.Kind) {
		return Result{}, types.ValidationError(fmt.Sprintf("%s is not available for %s files", action, rec.Kind), types.ErrUnsupportedKind)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	out, err := h(ctx, sess, rec, p)
	if err != nil {
		discard(out.path)
		tool.DefaultLogger.Warnf("Action %s on %s failed: %v", action, rec.Name, err)
		return Result{}, err
	}
	res := Result{Action: action, Link: out.link, Message: out.message}
	if out.path != "" {
		if err := d.store.Replace(sess, rec, out.path, out.name, out.kind, action); err != nil {
			discard(out.path)
			return Result{}, err
		}
		res.Changed = true
	}
	res.Record = rec.Clone()
	tool.DefaultLogger.Debugf("Action %s on %s done in %s", action, rec.Name, time.Since(start).Round(time.Millisecond))
	return res, nil
}

func discard(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

// PageCount reports the page count of a document record, for parsing page parameters.
func (d *Dispatcher) PageCount(ctx context.Context, rec *types.FileRecord) (int, error) {
	if rec == nil {
		return 0, types.ValidationError("upload a file first", types.ErrNoFiles)
	}
	if rec.Kind != types.KindDocument {
		return 0, types.ValidationError(fmt.Sprintf("%s files have no pages", rec.Kind), types.ErrUnsupportedKind)
	}
	return d.pageCount(ctx, rec)
}
