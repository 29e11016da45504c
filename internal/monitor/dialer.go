package monitor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/restream-tools/restreamctl/internal/util"
)

const handshakeTimeout = 30 * time.Second

// buildEndpointURL normalizes the scheme to ws(s) and attaches the access
// token as the accessToken query parameter. The handshake carries no auth
// header.
func buildEndpointURL(raw, accessToken string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported websocket scheme: %s", parsed.Scheme)
	}
	if accessToken != "" {
		query := parsed.Query()
		query.Set("accessToken", accessToken)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

// newProxyAwareDialer returns a websocket dialer routed through the given
// proxy URL. Without one, or when the URL cannot be applied, the dialer
// follows the environment proxy settings.
func newProxyAwareDialer(proxyURL string) *websocket.Dialer {
	dialer := &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  handshakeTimeout,
		EnableCompression: true,
		NetDialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	trimmed := strings.TrimSpace(proxyURL)
	if trimmed == "" {
		return dialer
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		log.Errorf("monitor: bad proxy URL, using environment: %v", err)
		return dialer
	}

	switch parsed.Scheme {
	case "socks5":
		socks, errSocks := util.SOCKS5DialerFromURL(parsed)
		if errSocks != nil {
			log.Errorf("monitor: SOCKS5 setup failed, using environment: %v", errSocks)
			return dialer
		}
		// The websocket dialer has no native SOCKS support; tunnel the TCP
		// connection instead and drop the HTTP proxy hook.
		dialer.Proxy = nil
		dialer.NetDialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return socks.Dial(network, addr)
		}
	case "http", "https":
		dialer.Proxy = http.ProxyURL(parsed)
	default:
		log.Errorf("monitor: unsupported proxy scheme %q, using environment", parsed.Scheme)
	}
	return dialer
}

// dial opens one websocket connection and installs the ping handler.
// Pongs are written from the shared write lock so they never interleave
// with the close frame.
func (m *Monitor) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := buildEndpointURL(m.opts.URL, m.opts.AccessToken)
	if err != nil {
		return nil, &ConnectionError{URL: m.opts.URL, Err: err}
	}

	dialer := newProxyAwareDialer(m.opts.ProxyURL)
	conn, resp, errDial := dialer.DialContext(ctx, wsURL, nil)
	if errDial != nil {
		detail := errDial
		if resp != nil {
			body := handshakeBody(resp)
			if len(body) > 0 {
				detail = fmt.Errorf("handshake status %d: %s: %w", resp.StatusCode, body, errDial)
			} else {
				detail = fmt.Errorf("handshake status %d: %w", resp.StatusCode, errDial)
			}
		}
		return nil, &ConnectionError{URL: m.opts.URL, Err: detail}
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	// Negotiating permessage-deflate is fine; outbound frames stay
	// uncompressed to sidestep flate tail validation issues.
	conn.EnableWriteCompression(false)
	conn.SetPingHandler(func(appData string) error {
		m.writeMu.Lock()
		defer m.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})
	return conn, nil
}

func handshakeBody(resp *http.Response) []byte {
	if resp == nil || resp.Body == nil {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	_ = resp.Body.Close()
	return []byte(strings.TrimSpace(string(body)))
}
