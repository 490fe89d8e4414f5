// Package dialogue holds the conversation transition table and the parsers
// for parameters typed by the user. Nothing here touches files or sessions.
package dialogue

import (
	"errors"
	"fmt"

	"github.com/moyoez/pdfbot-go/types"
)

// InputKind is what the user sent, already classified by the engine.
type InputKind int

const (
	InputFile InputKind = iota
	InputProcess
	InputAction
	InputParams
	InputWatermarkType
	InputCode
	InputBatchChoice
	InputCancel
	InputStart
)

func (k InputKind) String() string {
	switch k {
	case InputFile:
		return "file"
	case InputProcess:
		return "/process"
	case InputAction:
		return "action"
	case InputParams:
		return "parameters"
	case InputWatermarkType:
		return "watermark type"
	case InputCode:
		return "authorization code"
	case InputBatchChoice:
		return "batch choice"
	case InputCancel:
		return "/cancel"
	case InputStart:
		return "/start"
	default:
		return "unknown"
	}
}

// Input describes one turn. Only the fields relevant to Kind are read.
type Input struct {
	Kind InputKind

	Action types.ActionID
	Batch  types.BatchActionID

	// FileCount is the number of files in the session, including one just uploaded.
	FileCount int
	// FileKind is the kind of the active record, used to check action legality.
	FileKind types.FileKind
	// Authorized is true when the session already holds a cloud credential.
	Authorized bool
	// WatermarkChosen is true once the watermark type sub-menu was answered.
	WatermarkChosen bool
	// BatchPending is true when a batch action waits for its parameter.
	BatchPending bool
}

var ErrUnexpectedInput = errors.New("input not expected at this point")

// Machine is the transition table. The zero value is ready to use.
type Machine struct{}

// Next returns the stage after in. A non-nil error explains a rejected input;
// the returned stage is still the one to move to (usually the current one).
func (Machine) Next(stage types.Stage, in Input) (types.Stage, error) {
	switch in.Kind {
	case InputCancel:
		return types.StageEnded, nil
	case InputStart:
		return types.StageUpload, nil
	}

	switch stage {
	case types.StageUpload, types.StageEnded:
		return nextUpload(in)
	case types.StageActionChoice:
		return nextActionChoice(in)
	case types.StageDeletePages, types.StageRearrange, types.StageEncrypt:
		if in.Kind == InputParams {
			return types.StageActionChoice, nil
		}
	case types.StageInsertPage:
		if in.Kind == InputFile || in.Kind == InputParams {
			return types.StageActionChoice, nil
		}
	case types.StageWatermark:
		return nextWatermark(in)
	case types.StageCloudSave:
		if in.Kind == InputCode || in.Kind == InputParams {
			return types.StageActionChoice, nil
		}
	case types.StageBatchProcess:
		return nextBatch(in)
	}
	return stage, rejected(stage, in)
}

func nextUpload(in Input) (types.Stage, error) {
	switch in.Kind {
	case InputFile:
		if in.FileCount == 1 {
			return types.StageActionChoice, nil
		}
		return types.StageUpload, nil
	case InputProcess:
		return process(in)
	}
	return types.StageUpload, rejected(types.StageUpload, in)
}

func nextActionChoice(in Input) (types.Stage, error) {
	switch in.Kind {
	case InputFile:
		// a second upload turns the session into a batch being collected
		if in.FileCount > 1 {
			return types.StageUpload, nil
		}
		return types.StageActionChoice, nil
	case InputProcess:
		return process(in)
	case InputAction:
	default:
		return types.StageActionChoice, rejected(types.StageActionChoice, in)
	}

	if in.FileKind != "" && !in.Action.LegalFor(in.FileKind) {
		return types.StageActionChoice, types.ValidationError(
			fmt.Sprintf("%s is not available for %s files", in.Action, in.FileKind), types.ErrUnknownAction)
	}
	switch in.Action {
	case types.ActionDelete:
		return types.StageDeletePages, nil
	case types.ActionInsert:
		return types.StageInsertPage, nil
	case types.ActionRearrange:
		return types.StageRearrange, nil
	case types.ActionEncrypt:
		return types.StageEncrypt, nil
	case types.ActionWatermark:
		return types.StageWatermark, nil
	case types.ActionOCR, types.ActionCompress, types.ActionImageToPDF:
		return types.StageActionChoice, nil
	case types.ActionCloud:
		if in.Authorized {
			return types.StageActionChoice, nil
		}
		return types.StageCloudSave, nil
	case types.ActionBatch:
		return types.StageBatchProcess, nil
	case types.ActionDone:
		return types.StageEnded, nil
	}
	return types.StageActionChoice, types.ValidationError(fmt.Sprintf("unknown action %q", in.Action), types.ErrUnknownAction)
}

func nextWatermark(in Input) (types.Stage, error) {
	switch in.Kind {
	case InputWatermarkType:
		return types.StageWatermark, nil
	case InputParams, InputFile:
		if !in.WatermarkChosen {
			return types.StageWatermark, types.ValidationError("choose text or image watermark first", ErrUnexpectedInput)
		}
		return types.StageActionChoice, nil
	}
	return types.StageWatermark, rejected(types.StageWatermark, in)
}

func nextBatch(in Input) (types.Stage, error) {
	switch in.Kind {
	case InputFile:
		return types.StageBatchProcess, nil
	case InputProcess:
		return process(in)
	case InputBatchChoice:
		if in.Batch.NeedsParameter() {
			return types.StageBatchProcess, nil
		}
		return types.StageActionChoice, nil
	case InputParams:
		if in.BatchPending {
			return types.StageActionChoice, nil
		}
	}
	return types.StageBatchProcess, rejected(types.StageBatchProcess, in)
}

// process handles /process: batch needs at least two files.
func process(in Input) (types.Stage, error) {
	if in.FileCount >= 2 {
		return types.StageBatchProcess, nil
	}
	err := types.ValidationError("batch processing needs at least two files", types.ErrNoFiles)
	if in.FileCount == 1 {
		return types.StageActionChoice, err
	}
	return types.StageUpload, err
}

func rejected(stage types.Stage, in Input) error {
	return types.ValidationError(fmt.Sprintf("%s is not expected while in %s", in.Kind, stage), ErrUnexpectedInput)
}

// AfterFailure is the stage to return to when an action at stage failed with err.
// Validation failures keep the stage so the input is requested again.
func AfterFailure(stage types.Stage, err error) types.Stage {
	switch types.KindOf(err) {
	case types.ErrorKindValidation:
		return stage
	case types.ErrorKindResource:
		return types.StageEnded
	default:
		return types.StageActionChoice
	}
}
