package types

// AppConfig represents the application configuration loaded from config file
type AppConfig struct {
	Port          int    `yaml:"port"`
	Protocol      string `yaml:"protocol"`      // http | https
	PublicBaseURL string `yaml:"publicBaseURL"` // used to build result and QR links
	CertPEM       string `yaml:"certPEM,omitempty"`
	KeyPEM        string `yaml:"keyPEM,omitempty"`

	ScratchRoot          string `yaml:"scratchRoot"`
	MaxSessions          int    `yaml:"maxSessions"`
	SessionTTLMinutes    int    `yaml:"sessionTtlMinutes"`
	Workers              int    `yaml:"workers"` // 0 = number of CPUs
	ActionTimeoutMinutes int    `yaml:"actionTimeoutMinutes"`
	MaxUploadMB          int    `yaml:"maxUploadMB"`
	Retention            string `yaml:"retention"` // delete | retain
	KeepOriginal         bool   `yaml:"keepOriginal"`

	RateLimit RateLimitConfig `yaml:"rateLimit"`
	OCR       OCRConfig       `yaml:"ocr"`
	Cloud     CloudConfig     `yaml:"cloud"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type RateLimitConfig struct {
	EventsPerSecond float64 `yaml:"eventsPerSecond"` // 0 disables limiting
	Burst           int     `yaml:"burst"`
}

type OCRConfig struct {
	TesseractPath string `yaml:"tesseractPath"`
	Language      string `yaml:"language"`
	DPI           int    `yaml:"dpi"`
}

// CloudConfig holds the OAuth client for cloud export. Secrets usually come from the environment.
type CloudConfig struct {
	Enabled          bool     `yaml:"enabled"`
	ClientID         string   `yaml:"clientId"`
	ClientSecret     string   `yaml:"clientSecret,omitempty"`
	AuthURL          string   `yaml:"authUrl"`
	TokenURL         string   `yaml:"tokenUrl"`
	RedirectURL      string   `yaml:"redirectUrl"`
	UploadURL        string   `yaml:"uploadUrl"`
	Scopes           []string `yaml:"scopes"`
	StateSecret      string   `yaml:"stateSecret,omitempty"`
	StateTTLMinutes  int      `yaml:"stateTtlMinutes"`
	UploadTimeoutSec int      `yaml:"uploadTimeoutSec"`
}

// DeliveryConfig points at an S3-compatible bucket used for result links.
type DeliveryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"accessKey,omitempty"`
	SecretKey      string `yaml:"secretKey,omitempty"`
	Bucket         string `yaml:"bucket"`
	UseSSL         bool   `yaml:"useSSL"`
	LinkTTLMinutes int    `yaml:"linkTtlMinutes"`
}

type NotifyConfig struct {
	Websocket     bool   `yaml:"websocket"`
	SidecarSocket string `yaml:"sidecarSocket"` // empty disables the sidecar push
}

// Config holds runtime overrides from CLI flags
type Config struct {
	Log           string
	UseConfigPath string
	ScratchRoot   string
	Port          int
	UseHttps      bool
	Workers       int
	SkipNotify    bool // if true, never push to the sidecar socket.
	SweepAge      int  // sweep: minimum age in minutes of scratch dirs to remove.
}
