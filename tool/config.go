package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/moyoez/pdfbot-go/types"
)

var (
	ConfigPath    = "config.yaml" // be aware that it can be changed, default to ./config.yaml
	CurrentConfig types.AppConfig
)

func DefaultConfig() types.AppConfig {
	return types.AppConfig{
		Port:                 8443,
		Protocol:             "http",
		PublicBaseURL:        "http://127.0.0.1:8443",
		ScratchRoot:          filepath.Join(os.TempDir(), "pdfbot"),
		MaxSessions:          1024,
		SessionTTLMinutes:    30,
		Workers:              0,
		ActionTimeoutMinutes: 10,
		MaxUploadMB:          50,
		Retention:            "delete",
		KeepOriginal:         true,
		RateLimit: types.RateLimitConfig{
			EventsPerSecond: 2,
			Burst:           10,
		},
		OCR: types.OCRConfig{
			TesseractPath: "/usr/bin/tesseract",
			Language:      "eng",
			DPI:           300,
		},
		Cloud: types.CloudConfig{
			Enabled:          false,
			AuthURL:          "https://accounts.google.com/o/oauth2/auth",
			TokenURL:         "https://oauth2.googleapis.com/token",
			RedirectURL:      "urn:ietf:wg:oauth:2.0:oob",
			UploadURL:        "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart&fields=id,webViewLink",
			Scopes:           []string{"https://www.googleapis.com/auth/drive.file"},
			StateTTLMinutes:  10,
			UploadTimeoutSec: 120,
		},
		Delivery: types.DeliveryConfig{
			Enabled:        false,
			Region:         "us-east-1",
			Bucket:         "pdfbot-results",
			LinkTTLMinutes: 60,
		},
		Notify: types.NotifyConfig{
			Websocket: true,
		},
	}
}

// LoadConfig reads the yaml config, creating it with defaults when missing.
// Secrets are taken from the environment (and a .env file) when set there.
func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()

	info, err := os.Stat(path)
	switch {
	case err != nil && os.IsNotExist(err):
		if writeErr := writeConfig(path, cfg); writeErr != nil {
			return cfg, fmt.Errorf("config file not found, and failed to generate default config: %w", writeErr)
		}
		DefaultLogger.Infof("Created new config file at %s", path)
	case err != nil:
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	case info.IsDir():
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return cfg, err
	}

	CurrentConfig = cfg
	return cfg, nil
}

func applyEnv(cfg *types.AppConfig) {
	cfg.Cloud.ClientID = firstNonEmpty(os.Getenv("PDFBOT_OAUTH_CLIENT_ID"), cfg.Cloud.ClientID)
	cfg.Cloud.ClientSecret = firstNonEmpty(os.Getenv("PDFBOT_OAUTH_CLIENT_SECRET"), cfg.Cloud.ClientSecret)
	cfg.Cloud.StateSecret = firstNonEmpty(os.Getenv("PDFBOT_STATE_SECRET"), cfg.Cloud.StateSecret)
	cfg.Delivery.Endpoint = firstNonEmpty(os.Getenv("PDFBOT_S3_ENDPOINT"), cfg.Delivery.Endpoint)
	cfg.Delivery.AccessKey = firstNonEmpty(os.Getenv("PDFBOT_S3_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER"), cfg.Delivery.AccessKey)
	cfg.Delivery.SecretKey = firstNonEmpty(os.Getenv("PDFBOT_S3_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD"), cfg.Delivery.SecretKey)
	cfg.OCR.TesseractPath = firstNonEmpty(os.Getenv("PDFBOT_TESSERACT"), cfg.OCR.TesseractPath)
}

func validateConfig(cfg *types.AppConfig) error {
	cfg.Protocol = strings.ToLower(strings.TrimSpace(cfg.Protocol))
	if cfg.Protocol != "http" && cfg.Protocol != "https" {
		return fmt.Errorf("invalid protocol %q: want http or https", cfg.Protocol)
	}
	switch cfg.Retention {
	case "", "delete":
		cfg.Retention = "delete"
	case "retain":
	default:
		return fmt.Errorf("invalid retention %q: want delete or retain", cfg.Retention)
	}
	if cfg.Cloud.Enabled && (cfg.Cloud.ClientID == "" || cfg.Cloud.ClientSecret == "") {
		return fmt.Errorf("cloud export enabled but oauth client id/secret missing")
	}
	if cfg.Cloud.Enabled && cfg.Cloud.StateSecret == "" {
		DefaultLogger.Warnf("No state secret configured, generating an ephemeral one")
		cfg.Cloud.StateSecret = GenerateRandomUUID()
	}
	if cfg.OCR.DPI <= 0 {
		cfg.OCR.DPI = 300
	}
	return nil
}

func writeConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// PersistConfig writes the current config back (used after a TLS certificate is generated).
func PersistConfig(cfg *types.AppConfig) {
	if cfg == nil {
		return
	}
	CurrentConfig = *cfg
	// secrets from the environment are not written back
	out := *cfg
	out.Cloud.ClientSecret = ""
	out.Cloud.StateSecret = ""
	out.Delivery.AccessKey = ""
	out.Delivery.SecretKey = ""
	if err := writeConfig(ConfigPath, out); err != nil {
		DefaultLogger.Warnf("Failed to persist config: %v", err)
	}
}

func GetCurrentConfig() *types.AppConfig {
	return &CurrentConfig
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
