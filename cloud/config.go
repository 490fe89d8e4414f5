package cloud

import (
	"time"

	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

// NewGateFromConfig wires the Drive uploader and OAuth exchanger.
// It returns nil when cloud export is disabled.
func NewGateFromConfig(cfg types.CloudConfig) (*Gate, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	conf := NewOAuthConfig(cfg)
	client := tool.NewHTTPClient(0)
	return NewGate(GateOptions{
		Exchanger: &OAuthExchanger{Config: conf, HTTPClient: client},
		Uploader: &DriveUploader{
			URL:        cfg.UploadURL,
			Config:     conf,
			HTTPClient: client,
			Timeout:    time.Duration(cfg.UploadTimeoutSec) * time.Second,
		},
		Secret:   []byte(cfg.StateSecret),
		StateTTL: time.Duration(cfg.StateTTLMinutes) * time.Minute,
	})
}

// NewDeliveryFromConfig returns nil when presigned delivery is disabled.
func NewDeliveryFromConfig(cfg types.DeliveryConfig) (*Delivery, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return NewDelivery(cfg)
}
