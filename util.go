package servicegeek

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ChatNamespace is the path the live chat gateway is mounted under.
const ChatNamespace = "/chat"

// LiveURL maps an API base URL onto the live chat gateway address:
// http becomes ws, https becomes wss, and the chat namespace is appended.
func LiveURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in %q", u.Scheme, baseURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url missing host: %q", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + ChatNamespace
	return u.String(), nil
}

func urlQueryEscape(v string) string {
	return url.QueryEscape(v)
}

func urlPathEscape(v string) string {
	return url.PathEscape(v)
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
