// Package notify pushes replies and session events to a transport sidecar over a Unix socket.
package notify

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

// WriteChunkSize is the chunk size when writing a payload to the socket; it is also the payload limit.
const WriteChunkSize = 32 * 1024

const (
	DefaultSocketPath = "/tmp/pdfbot-notify.sock"
	DefaultTimeout    = 3 * time.Second
	queueSize         = 256
)

// Sidecar delivers notifications in the background, in publish order.
// Frames are a 4-byte little-endian length followed by the JSON payload.
type Sidecar struct {
	SocketPath string
	Timeout    time.Duration

	queue  chan *types.Notification
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

func NewSidecar(socketPath string) *Sidecar {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	s := &Sidecar{
		SocketPath: socketPath,
		Timeout:    DefaultTimeout,
		queue:      make(chan *types.Notification, queueSize),
		done:       make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Sidecar) loop() {
	defer close(s.done)
	for n := range s.queue {
		if err := s.Send(n); err != nil {
			tool.DefaultLogger.Warnf("[UnixSocket] %v", err)
		}
	}
}

// Publish implements types.NotifyHub. It never blocks; a full queue drops the notification
// and so does a closed sidecar.
func (s *Sidecar) Publish(userID int64, n *types.Notification) {
	if n == nil {
		return
	}
	c := *n
	c.Data = make(map[string]any, len(n.Data)+1)
	for k, v := range n.Data {
		c.Data[k] = v
	}
	c.Data["userId"] = userID

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- &c:
	default:
		tool.DefaultLogger.Warnf("[UnixSocket] Queue full, dropping %s notification for user %d", n.Type, userID)
	}
}

// Close stops accepting notifications and waits for the queue to drain.
func (s *Sidecar) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

// Send delivers one notification synchronously and checks the sidecar's answer.
func (s *Sidecar) Send(notification *types.Notification) error {
	if _, err := os.Stat(s.SocketPath); os.IsNotExist(err) {
		return fmt.Errorf("unix socket not found: %s (is the sidecar running?)", s.SocketPath)
	}

	payload := []byte("{}")
	if notification != nil {
		var err error
		payload, err = sonic.Marshal(notification)
		if err != nil {
			return fmt.Errorf("failed to serialize notification: %w", err)
		}
	}
	if len(payload) > WriteChunkSize {
		return fmt.Errorf("notification payload too large: %d bytes (max %d)", len(payload), WriteChunkSize)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conn, err := net.DialTimeout("unix", s.SocketPath, timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to unix socket %s: %w", s.SocketPath, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close unix socket connection: %v", err)
		}
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		tool.DefaultLogger.Errorf("Failed to set write deadline: %v", err)
	}
	lengthBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lengthBuf, uint32(len(payload)))
	if _, err := conn.Write(lengthBuf); err != nil {
		return fmt.Errorf("failed to write length to unix socket: %w", err)
	}
	for off := 0; off < len(payload); {
		end := min(off+WriteChunkSize, len(payload))
		nw, err := conn.Write(payload[off:end])
		if err != nil {
			return fmt.Errorf("failed to write payload to unix socket: %w", err)
		}
		off += nw
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		tool.DefaultLogger.Errorf("Failed to set read deadline: %v", err)
	}
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read response from unix socket: %w", err)
	}
	if n > 0 {
		var response map[string]any
		if err := sonic.Unmarshal(buf[:n], &response); err != nil {
			tool.DefaultLogger.Debugf("Unix socket response (raw): %s", string(buf[:n]))
		} else if msg, ok := response["error"].(string); ok && msg != "" {
			return fmt.Errorf("sidecar returned error: %s", msg)
		}
	}
	if notification != nil {
		tool.DefaultLogger.Debugf("[UnixSocket] Notification sent: %s", notification.Type)
	}
	return nil
}
