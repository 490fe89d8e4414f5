package types

// Stage is the position of a user in the conversation.
type Stage int

const (
	StageUpload Stage = iota
	StageActionChoice
	StageDeletePages
	StageInsertPage
	StageRearrange
	StageEncrypt
	StageWatermark
	StageCloudSave
	StageBatchProcess
	// StageEnded is not a dialogue position; it marks a finished conversation.
	StageEnded
)

func (s Stage) String() string {
	switch s {
	case StageUpload:
		return "upload"
	case StageActionChoice:
		return "action_choice"
	case StageDeletePages:
		return "delete_pages"
	case StageInsertPage:
		return "insert_page"
	case StageRearrange:
		return "rearrange"
	case StageEncrypt:
		return "encrypt"
	case StageWatermark:
		return "watermark"
	case StageCloudSave:
		return "cloud_save"
	case StageBatchProcess:
		return "batch_process"
	case StageEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// CollectsParameters reports whether the stage waits for action parameters.
func (s Stage) CollectsParameters() bool {
	switch s {
	case StageDeletePages, StageInsertPage, StageRearrange, StageEncrypt, StageWatermark, StageCloudSave, StageBatchProcess:
		return true
	}
	return false
}
