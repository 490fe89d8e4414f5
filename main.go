package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moyoez/pdfbot-go/actions"
	"github.com/moyoez/pdfbot-go/api"
	"github.com/moyoez/pdfbot-go/api/controllers"
	"github.com/moyoez/pdfbot-go/api/middlewares"
	"github.com/moyoez/pdfbot-go/api/notifyhub"
	"github.com/moyoez/pdfbot-go/bot"
	"github.com/moyoez/pdfbot-go/cloud"
	"github.com/moyoez/pdfbot-go/docops"
	"github.com/moyoez/pdfbot-go/notify"
	"github.com/moyoez/pdfbot-go/ocr"
	"github.com/moyoez/pdfbot-go/store"
	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

const shutdownTimeout = 30 * time.Second

var flags types.Config

func main() {
	root := &cobra.Command{
		Use:          "pdfbot",
		Short:        "PDF toolbox chat bot",
		SilenceUsage: true,
		RunE:         runServe,
	}
	tool.BindFlags(root.PersistentFlags(), &flags)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the bot webhook (default)",
		RunE:  runServe,
	})

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove scratch directories left behind by a previous run",
		RunE:  runSweep,
	}
	sweepCmd.Flags().IntVar(&flags.SweepAge, "age", 60, "minimum age in minutes of a scratch dir to remove")
	root.AddCommand(sweepCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (types.AppConfig, error) {
	tool.InitLogger()
	tool.SetLogMode(flags.Log)
	appCfg, err := tool.LoadConfig(flags.UseConfigPath)
	if err != nil {
		return appCfg, err
	}
	tool.ApplyOverrides(&appCfg, flags)
	tool.CurrentConfig = appCfg
	return appCfg, nil
}

func runSweep(_ *cobra.Command, _ []string) error {
	appCfg, err := loadConfig()
	if err != nil {
		return err
	}
	n, err := store.Sweep(appCfg.ScratchRoot, time.Duration(flags.SweepAge)*time.Minute)
	if err != nil {
		return fmt.Errorf("sweep %s: %w", appCfg.ScratchRoot, err)
	}
	tool.DefaultLogger.Infof("Removed %d scratch dirs from %s", n, appCfg.ScratchRoot)
	return nil
}

func runServe(_ *cobra.Command, _ []string) error {
	appCfg, err := loadConfig()
	if err != nil {
		return err
	}

	// orphans of a crashed run; live sessions never outlast the TTL
	ttl := time.Duration(appCfg.SessionTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = store.DefaultTTL
	}
	if n, err := store.Sweep(appCfg.ScratchRoot, ttl); err != nil {
		tool.DefaultLogger.Warnf("Startup sweep failed: %v", err)
	} else if n > 0 {
		tool.DefaultLogger.Infof("Startup sweep removed %d stale scratch dirs", n)
	}

	var wsHub *notifyhub.Hub
	var hubs []types.NotifyHub
	if appCfg.Notify.Websocket {
		wsHub = notifyhub.New()
		hubs = append(hubs, wsHub)
	}
	var sidecar *notify.Sidecar
	if appCfg.Notify.SidecarSocket != "" {
		sidecar = notify.NewSidecar(appCfg.Notify.SidecarSocket)
		defer sidecar.Close()
		hubs = append(hubs, sidecar)
	}
	hub := notify.Tee(hubs...)

	st, err := store.New(store.Options{
		Root:         appCfg.ScratchRoot,
		MaxSessions:  appCfg.MaxSessions,
		TTL:          ttl,
		Retention:    store.ParseRetention(appCfg.Retention),
		KeepOriginal: appCfg.KeepOriginal,
		MaxFileBytes: int64(appCfg.MaxUploadMB) << 20,
		OnEvict: func(userID int64, reason store.EvictReason) {
			if hub == nil || reason != store.ReasonExpired {
				return
			}
			hub.Publish(userID, &types.Notification{
				Type:    types.NotifyTypeSessionReaped,
				Message: "Your session expired and its files were removed. Send /start to begin again.",
			})
		},
	})
	if err != nil {
		return err
	}
	defer st.Close()

	tesseract := ocr.NewTesseract(appCfg.OCR.TesseractPath, appCfg.OCR.Language)
	ocrService := &ocr.Service{Rasterizer: ocr.FitzRasterizer{}, Workers: appCfg.Workers, DPI: appCfg.OCR.DPI}
	if tesseract.Available() {
		ocrService.Engine = tesseract
	} else {
		tool.DefaultLogger.Warnf("Tesseract not found at %s, OCR is disabled", tesseract.Path)
	}

	dispatchOpts := actions.Options{
		Store:   st,
		Library: docops.NewPDFCPU(),
		OCR:     ocrService,
		Timeout: time.Duration(appCfg.ActionTimeoutMinutes) * time.Minute,
	}
	gate, err := cloud.NewGateFromConfig(appCfg.Cloud)
	if err != nil {
		return err
	}
	if gate != nil {
		dispatchOpts.Exporter = gate
	}
	delivery, err := cloud.NewDeliveryFromConfig(appCfg.Delivery)
	if err != nil {
		return err
	}
	if delivery != nil {
		dispatchOpts.Deliverer = delivery
	}
	dispatcher, err := actions.NewDispatcher(dispatchOpts)
	if err != nil {
		return err
	}

	base := strings.TrimRight(appCfg.PublicBaseURL, "/") + api.BasePath
	engine, err := bot.New(bot.Options{
		Store:      st,
		Dispatcher: dispatcher,
		Batch:      actions.NewBatch(dispatcher, appCfg.Workers),
		Gate:       gate,
		Hub:        hub,
		ResultURL: func(userID int64) string {
			return base + "/result?user=" + strconv.FormatInt(userID, 10)
		},
		QRURL: func(data string) string {
			return base + "/qr?data=" + url.QueryEscape(data)
		},
	})
	if err != nil {
		return err
	}

	server, err := api.NewServer(api.ServerOptions{
		Port:     appCfg.Port,
		Protocol: appCfg.Protocol,
		Bot:      engine,
		Store:    st,
		Hub:      wsHub,
		Limiter:  middlewares.NewUserLimiter(appCfg.RateLimit),
		Status: controllers.StatusInfo{
			CloudEnabled:    gate != nil,
			DeliveryEnabled: delivery != nil,
			OCREnabled:      ocrService.Engine != nil,
		},
		MaxUploadBytes: int64(appCfg.MaxUploadMB) << 20,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	go sweepLoop(ctx, st, ttl)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server startup failed: %w", err)
	case <-ctx.Done():
	}

	tool.DefaultLogger.Infof("Shutting down, %d live sessions will be reclaimed", st.Len())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		tool.DefaultLogger.Warnf("Graceful shutdown failed: %v", err)
	}
	return nil
}

// sweepLoop removes scratch dirs whose session is gone but whose reclaim failed.
func sweepLoop(ctx context.Context, st *store.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := st.Sweep(every); err != nil {
				tool.DefaultLogger.Warnf("Periodic sweep failed: %v", err)
			} else if n > 0 {
				tool.DefaultLogger.Infof("Periodic sweep removed %d orphaned scratch dirs", n)
			}
		}
	}
}
