package types

// Notification is pushed to websocket subscribers and the transport sidecar.
type Notification struct {
	Type    string         `json:"type,omitempty"` // one of the NotifyType constants
	Title   string         `json:"title,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

const (
	NotifyTypeReply         = "reply"
	NotifyTypeSessionEnded  = "session_ended"
	NotifyTypeSessionReaped = "session_reaped"
	NotifyTypeInfo          = "info"
)

// NotifyHub receives notifications for a user.
type NotifyHub interface {
	Publish(userID int64, notification *Notification)
}
