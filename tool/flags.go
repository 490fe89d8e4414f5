package tool

import (
	"github.com/spf13/pflag"

	"github.com/moyoez/pdfbot-go/types"
)

// BindFlags registers the runtime overrides on the given flag set.
func BindFlags(fs *pflag.FlagSet, cfg *types.Config) {
	fs.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	fs.StringVar(&cfg.UseConfigPath, "useConfigPath", "", "override config file path")
	fs.StringVar(&cfg.ScratchRoot, "scratchRoot", "", "override the directory holding session scratch dirs")
	fs.IntVar(&cfg.Port, "port", 0, "override listen port")
	fs.BoolVar(&cfg.UseHttps, "useHttps", false, "serve over TLS with a self-signed certificate")
	fs.IntVar(&cfg.Workers, "workers", 0, "override OCR / batch worker count")
	fs.BoolVar(&cfg.SkipNotify, "skipNotify", false, "never push notifications to the sidecar socket")
}

// ApplyOverrides folds non-zero CLI overrides into the loaded config.
func ApplyOverrides(app *types.AppConfig, flags types.Config) {
	if flags.ScratchRoot != "" {
		app.ScratchRoot = flags.ScratchRoot
	}
	if flags.Port > 0 {
		app.Port = flags.Port
	}
	if flags.UseHttps {
		app.Protocol = "https"
	}
	if flags.Workers > 0 {
		app.Workers = flags.Workers
	}
	if flags.SkipNotify {
		app.Notify.SidecarSocket = ""
	}
}
