// Package util provides small helpers shared across the client: proxy
// configuration for HTTP transports, secret masking, and home-directory
// path expansion.
package util

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// SOCKS5DialerFromURL builds a SOCKS5 dialer from a parsed proxy URL,
// carrying userinfo credentials when present.
func SOCKS5DialerFromURL(u *url.URL) (proxy.Dialer, error) {
	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: password}
	}
	return proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
}

// SetProxy routes the HTTP client through the given proxy URL. SOCKS5,
// HTTP, and HTTPS schemes are supported; an empty or unparsable URL leaves
// the client on environment proxy settings.
func SetProxy(proxyURL string, httpClient *http.Client) *http.Client {
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return httpClient
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		log.Errorf("parse proxy url failed: %v", err)
		return httpClient
	}

	switch parsed.Scheme {
	case "socks5":
		dialer, errDial := SOCKS5DialerFromURL(parsed)
		if errDial != nil {
			log.Errorf("create SOCKS5 dialer failed: %v", errDial)
			return httpClient
		}
		httpClient.Transport = &http.Transport{
			DialContext: func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	case "http", "https":
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(parsed)}
	default:
		log.Warnf("unsupported proxy scheme %q, ignoring", parsed.Scheme)
	}
	return httpClient
}

// ExpandHome replaces a leading "~" in path with the current user's home
// directory. Paths without the prefix are returned unchanged.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}
