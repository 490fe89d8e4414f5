package bot

import (
	"fmt"
	"strings"

	"github.com/moyoez/pdfbot-go/types"
)

const (
	greeting = "📎 Welcome to PDF Toolbox Bot! Send me a PDF file or image to get started.\n\n" +
		"You can also batch process multiple files by sending them one after another."
	menuColumns = 2
)

var actionLabels = map[types.ActionID]string{
	types.ActionDelete:     "🗑️ Delete Pages",
	types.ActionInsert:     "📄 Insert Page",
	types.ActionCompress:   "🗜️ Compress",
	types.ActionRearrange:  "🔀 Rearrange",
	types.ActionOCR:        "🔍 OCR Text Recognition",
	types.ActionEncrypt:    "🔒 Encrypt/Decrypt",
	types.ActionWatermark:  "💧 Add Watermark",
	types.ActionCloud:      "☁️ Save to Cloud",
	types.ActionDone:       "📤 Get Result",
	types.ActionBatch:      "🔄 Batch Process",
	types.ActionImageToPDF: "📄 Convert to PDF",
}

var batchLabels = map[types.BatchActionID]string{
	types.BatchCompress: "🗜️ Compress All",
	types.BatchEncrypt:  "🔒 Encrypt All",
	types.BatchOCR:      "🔍 OCR All",
	types.BatchMerge:    "📚 Merge All",
}

var prompts = map[types.ActionID]string{
	types.ActionDelete:    "Enter page numbers to delete (e.g., 1,3-5):",
	types.ActionInsert:    "Send the PDF or image to insert as a separate file. Put the page to insert after in the caption (0 = front, empty = end).",
	types.ActionRearrange: "Enter new page order (e.g., 3,1,2):",
	types.ActionEncrypt:   "Enter operation and password (e.g., 'encrypt mypassword' or 'decrypt mypassword'):",
}

// grid lays buttons out menuColumns per row.
func grid(buttons []types.Button) [][]types.Button {
	var rows [][]types.Button
	for len(buttons) > 0 {
		n := min(menuColumns, len(buttons))
		rows = append(rows, buttons[:n:n])
		buttons = buttons[n:]
	}
	return rows
}

// actionMenu lists the actions legal for kind.
func actionMenu(kind types.FileKind) [][]types.Button {
	var buttons []types.Button
	for _, a := range types.ActionsFor(kind) {
		buttons = append(buttons, types.Button{Text: actionLabels[a], Data: string(a)})
	}
	return grid(buttons)
}

func batchMenu() [][]types.Button {
	var buttons []types.Button
	for _, b := range types.AllBatchActions() {
		buttons = append(buttons, types.Button{Text: batchLabels[b], Data: string(b)})
	}
	return grid(buttons)
}

func watermarkMenu() [][]types.Button {
	return [][]types.Button{
		{{Text: "Text Watermark", Data: string(types.WatermarkText)}},
		{{Text: "Image Watermark", Data: string(types.WatermarkImage)}},
	}
}

func menuText(rec *types.FileRecord) string {
	kind := "PDF"
	switch rec.Kind {
	case types.KindImage:
		kind = "image"
	case types.KindText:
		kind = "text file"
	}
	return fmt.Sprintf("📄 %s (%s) ready. Choose an action:", rec.Name, kind)
}

// statusText lists the session files with their applied actions.
func statusText(stage types.Stage, files []*types.FileRecord) string {
	if len(files) == 0 {
		return "No files yet. Send a PDF or image to get started."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Stage: %s\nFiles: %d\n", stage, len(files))
	for i, f := range files {
		fmt.Fprintf(&sb, "%d. %s [%s]", i+1, f.Name, f.Kind)
		if len(f.History) > 0 {
			steps := make([]string, len(f.History))
			for j, a := range f.History {
				steps[j] = string(a)
			}
			fmt.Fprintf(&sb, " %s", strings.Join(steps, " → "))
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func errorText(err error) string {
	return "❌ " + types.UserMessage(err)
}
