package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDResolution(t *testing.T) {
	clientID := uuid.NewString()
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "client id", headers: map[string]string{requestIDHeader: clientID}, want: clientID},
		{
			name:    "trace fallback",
			headers: map[string]string{requestIDHeader: "junk", cloudTraceHeader: "105445aa7843bc8bf206b12000100000/1;o=1"},
			want:    "105445aa-7843-bc8b-f206-b12000100000",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp := httptest.NewRecorder()
			RequestID(nil)(okHandler()).ServeHTTP(resp, req)
			if got := resp.Header().Get(requestIDHeader); got != tc.want {
				t.Fatalf("request id = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRequestIDGeneratesWhenMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(cloudTraceHeader, "not-hex/1")
	resp := httptest.NewRecorder()
	RequestID(nil)(okHandler()).ServeHTTP(resp, req)
	if _, err := uuid.Parse(resp.Header().Get(requestIDHeader)); err != nil {
		t.Fatalf("expected generated uuid, got %q", resp.Header().Get(requestIDHeader))
	}
}
