package control

import (
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/offlinefirst/scrollzoom/pkg/engine"
)

const (
	feedBuffer = 16
	writeWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     isSameOrigin,
}

type wsConnection struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	send    chan engine.Activation
	once    sync.Once
	done    chan struct{}
}

func (c *wsConnection) sendJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConnection) close() {
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.conn.Close()
	})
}

// feed fans activations out to websocket clients. publish runs on the loop
// and never blocks it: a client that falls behind loses activations.
type feed struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[*wsConnection]struct{}
}

func newFeed(logger *slog.Logger) *feed {
	return &feed{logger: logger, clients: make(map[*wsConnection]struct{})}
}

func (f *feed) publish(a engine.Activation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- a:
		default:
			f.logger.Warn("activation dropped for slow feed client", "device", a.DeviceID, "active", a.Active)
		}
	}
}

func (f *feed) add(c *wsConnection) {
	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()
}

func (f *feed) remove(c *wsConnection) {
	f.mu.Lock()
	delete(f.clients, c)
	f.mu.Unlock()
}

// len reports the connected clients.
func (f *feed) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *feed) closeAll() {
	f.mu.Lock()
	clients := make([]*wsConnection, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.clients = make(map[*wsConnection]struct{})
	f.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	// The HTTP server's request deadlines outlive the hijack.
	_ = conn.SetReadDeadline(time.Time{})

	c := &wsConnection{
		conn: conn,
		send: make(chan engine.Activation, feedBuffer),
		done: make(chan struct{}),
	}
	s.feed.add(c)
	s.logger.Debug("feed client connected", "remote", r.RemoteAddr)

	go s.writeFeed(c)

	// Clients only listen; reading keeps control frames flowing and notices
	// the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.logger.Debug("feed client closed", "remote", r.RemoteAddr, "error", err)
			break
		}
	}
	s.feed.remove(c)
	c.close()
}

func (s *Server) writeFeed(c *wsConnection) {
	for {
		select {
		case <-c.done:
			return
		case a := <-c.send:
			if err := c.sendJSON(a); err != nil {
				s.logger.Debug("feed write failed", "error", err)
				c.close()
				return
			}
		}
	}
}

func isSameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	return originURL.Host == r.Host
}
