package ws

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     isWebSocketOriginAllowed,
}

var orgIDPattern = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

// Handler upgrades HTTP connections into hub clients. A fresh client
// receives nothing until it subscribes with an org id.
type Handler struct {
	Hub *Hub
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := NewClient(h.Hub, conn)
	h.Hub.Register(client)

	go client.writeLoop()
	client.readLoop()
}

type clientMessage struct {
	Type  string `json:"type"`
	OrgID string `json:"org_id"`
}

// readLoop consumes subscribe/unsubscribe messages until the peer
// disconnects. Anything unparseable is dropped silently; the protocol
// is advisory, not authenticated.
func (c *Client) readLoop() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		c.handleControl(msg)
	}
}

func (c *Client) handleControl(msg clientMessage) {
	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case "subscribe":
		orgID := strings.TrimSpace(msg.OrgID)
		if isAllowedSubscriptionOrgID(orgID) {
			c.SetOrgID(orgID)
		}
	case "unsubscribe":
		c.SetOrgID("")
	}
}

// writeLoop drains the send channel and keeps the connection alive
// with pings.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if c.Conn.WriteMessage(websocket.TextMessage, payload) != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if c.Conn.WriteMessage(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func isAllowedSubscriptionOrgID(orgID string) bool {
	switch strings.ToLower(orgID) {
	case "":
		return false
	case "demo", "default":
		return true
	}
	return orgIDPattern.MatchString(orgID)
}

// isWebSocketOriginAllowed permits same-origin and loopback-alias
// upgrades; anything else must appear in WS_ALLOWED_ORIGINS (a
// comma-separated list of origins, "*" and "*.domain" accepted).
func isWebSocketOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := hostWithoutPort(originURL.Host)
	if originHost == "" {
		return false
	}

	serverHost := hostWithoutPort(r.Host)
	if originHost == serverHost {
		return true
	}
	if isLoopbackHost(originHost) && isLoopbackHost(serverHost) {
		return true
	}

	for _, pattern := range strings.Split(os.Getenv("WS_ALLOWED_ORIGINS"), ",") {
		if originMatchesPattern(originURL, originHost, strings.TrimSpace(pattern)) {
			return true
		}
	}
	return false
}

func originMatchesPattern(originURL *url.URL, originHost, pattern string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}

	patternURL, err := url.Parse(pattern)
	if err != nil {
		return false
	}
	if patternURL.Scheme != "" && patternURL.Scheme != originURL.Scheme {
		return false
	}

	patternHost := hostWithoutPort(patternURL.Host)
	if suffix, ok := strings.CutPrefix(patternHost, "*."); ok {
		// Wildcard covers subdomains only, never the apex.
		return originHost != suffix && strings.HasSuffix(originHost, "."+suffix)
	}
	return patternHost != "" && originHost == patternHost
}

// hostWithoutPort lowercases and strips any port, handling bracketed
// IPv6 literals.
func hostWithoutPort(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.Trim(host, "[]")
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
