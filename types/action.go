package types

// ActionID identifies a menu action. Values double as button callback data.
type ActionID string

const (
	ActionDelete     ActionID = "delete"
	ActionInsert     ActionID = "insert"
	ActionRearrange  ActionID = "rearrange"
	ActionCompress   ActionID = "compress"
	ActionOCR        ActionID = "ocr"
	ActionEncrypt    ActionID = "encrypt"
	ActionWatermark  ActionID = "watermark"
	ActionCloud      ActionID = "cloud"
	ActionBatch      ActionID = "batch"
	ActionImageToPDF ActionID = "image_to_pdf"
	ActionDone       ActionID = "done"
)

// AllActions lists every ActionID in menu order.
func AllActions() []ActionID {
	return []ActionID{
		ActionDelete, ActionInsert, ActionCompress, ActionRearrange, ActionOCR,
		ActionEncrypt, ActionWatermark, ActionCloud, ActionDone, ActionBatch, ActionImageToPDF,
	}
}

// TransformActions are the actions that replace a record's artifact.
func TransformActions() []ActionID {
	return []ActionID{
		ActionDelete, ActionInsert, ActionRearrange, ActionCompress,
		ActionOCR, ActionEncrypt, ActionWatermark, ActionImageToPDF,
	}
}

// ParseActionID returns the action for callback data.
func ParseActionID(s string) (ActionID, bool) {
	for _, a := range AllActions() {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// IsTransform reports whether a produces a new artifact for one record.
func (a ActionID) IsTransform() bool {
	for _, t := range TransformActions() {
		if t == a {
			return true
		}
	}
	return false
}

var legalActions = map[FileKind][]ActionID{
	KindDocument: {ActionDelete, ActionInsert, ActionCompress, ActionRearrange, ActionOCR, ActionEncrypt, ActionWatermark, ActionCloud, ActionDone, ActionBatch},
	KindImage:    {ActionImageToPDF, ActionOCR, ActionWatermark, ActionCloud, ActionDone},
	KindText:     {ActionCloud, ActionDone},
}

// ActionsFor returns the menu for a file kind.
func ActionsFor(kind FileKind) []ActionID {
	return append([]ActionID(nil), legalActions[kind]...)
}

// LegalFor reports whether a is offered for kind.
func (a ActionID) LegalFor(kind FileKind) bool {
	for _, l := range legalActions[kind] {
		if l == a {
			return true
		}
	}
	return false
}

// BatchActionID identifies a batch action.
type BatchActionID string

const (
	BatchCompress BatchActionID = "batch_compress"
	BatchEncrypt  BatchActionID = "batch_encrypt"
	BatchOCR      BatchActionID = "batch_ocr"
	BatchMerge    BatchActionID = "batch_merge"
)

// AllBatchActions lists batch actions in menu order.
func AllBatchActions() []BatchActionID {
	return []BatchActionID{BatchCompress, BatchEncrypt, BatchOCR, BatchMerge}
}

// ParseBatchActionID returns the batch action for callback data.
func ParseBatchActionID(s string) (BatchActionID, bool) {
	for _, b := range AllBatchActions() {
		if string(b) == s {
			return b, true
		}
	}
	return "", false
}

// NeedsParameter reports whether the batch action asks for more input first.
func (b BatchActionID) NeedsParameter() bool {
	return b == BatchEncrypt
}

// WatermarkMode is the watermark sub-menu choice.
type WatermarkMode string

const (
	WatermarkNone  WatermarkMode = ""
	WatermarkText  WatermarkMode = "text_watermark"
	WatermarkImage WatermarkMode = "image_watermark"
)

// ParseWatermarkMode returns the mode for callback data.
func ParseWatermarkMode(s string) (WatermarkMode, bool) {
	switch WatermarkMode(s) {
	case WatermarkText, WatermarkImage:
		return WatermarkMode(s), true
	}
	return WatermarkNone, false
}

// CryptoOp is the encrypt stage operation.
type CryptoOp string

const (
	OpEncrypt CryptoOp = "encrypt"
	OpDecrypt CryptoOp = "decrypt"
)
