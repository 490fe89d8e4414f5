package notify

import "github.com/moyoez/pdfbot-go/types"

type tee []types.NotifyHub

// Tee publishes to every non-nil hub, in order. It returns nil when there is none.
func Tee(hubs ...types.NotifyHub) types.NotifyHub {
	var t tee
	for _, h := range hubs {
		if h != nil {
			t = append(t, h)
		}
	}
	if len(t) == 0 {
		return nil
	}
	return t
}

func (t tee) Publish(userID int64, n *types.Notification) {
	for _, h := range t {
		h.Publish(userID, n)
	}
}
