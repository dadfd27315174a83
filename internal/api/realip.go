package api

import (
	"net"
	"net/http"
	"strings"
)

// clientIP resolves the caller's address, honoring proxy headers in order
// of trust before falling back to the socket address. The gateway sits
// behind Cloudflare in the common deployment, so CF-Connecting-IP wins.
func clientIP(r *http.Request) string {
	headers := []string{
		"CF-Connecting-IP",
		"True-Client-IP",
		"X-Forwarded-For",
		"X-Real-IP",
		"Forwarded",
	}

	for _, header := range headers {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}

		switch header {
		case "X-Forwarded-For":
			// Comma-separated; the first entry is the client.
			candidate := strings.TrimSpace(strings.Split(value, ",")[0])
			if host, _, err := net.SplitHostPort(candidate); err == nil {
				candidate = host
			}
			if ip := net.ParseIP(candidate); ip != nil {
				return ip.String()
			}

		case "Forwarded":
			// for=192.0.2.60;proto=http;by=203.0.113.43, for=...
			first := strings.TrimSpace(strings.Split(value, ",")[0])
			for _, part := range strings.Split(first, ";") {
				part = strings.ToLower(strings.TrimSpace(part))
				if strings.HasPrefix(part, "for=") {
					candidate := strings.Trim(strings.TrimPrefix(part, "for="), `"`)
					if ip := net.ParseIP(candidate); ip != nil {
						return ip.String()
					}
				}
			}

		default:
			if ip := net.ParseIP(value); ip != nil {
				return ip.String()
			}
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if ip := net.ParseIP(r.RemoteAddr); ip != nil {
		return ip.String()
	}
	return ""
}
