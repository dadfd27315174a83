package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:   "socket address",
			remote: "192.0.2.7:49152",
			want:   "192.0.2.7",
		},
		{
			name:    "cloudflare wins over forwarded-for",
			headers: map[string]string{"CF-Connecting-IP": "203.0.113.1", "X-Forwarded-For": "198.51.100.1"},
			remote:  "192.0.2.7:49152",
			want:    "203.0.113.1",
		},
		{
			name:    "forwarded-for takes first entry",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"},
			remote:  "192.0.2.7:49152",
			want:    "203.0.113.1",
		},
		{
			name:    "forwarded-for with port",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.1:1234"},
			remote:  "192.0.2.7:49152",
			want:    "203.0.113.1",
		},
		{
			name:    "rfc 7239 forwarded",
			headers: map[string]string{"Forwarded": `for="203.0.113.60";proto=https, for=198.51.100.1`},
			remote:  "192.0.2.7:49152",
			want:    "203.0.113.60",
		},
		{
			name:    "garbage header falls through",
			headers: map[string]string{"X-Real-IP": "not-an-ip"},
			remote:  "192.0.2.7:49152",
			want:    "192.0.2.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(r))
		})
	}
}
