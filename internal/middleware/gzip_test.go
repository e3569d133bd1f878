package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func gzipTestHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	w.Header().Set("Content-Type", contentType)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("received: " + string(body)))
}

func TestGzipMiddleware(t *testing.T) {
	type want struct {
		statusCode      int
		contentEncoding string
		bodyContains    string
	}

	tests := []struct {
		name         string
		requestBody  string
		gzipRequest  bool
		headers      map[string]string
		want         want
	}{
		{
			name:        "client accepts gzip",
			requestBody: `{"amount":100}`,
			headers: map[string]string{
				"Accept-Encoding": "gzip",
				"Content-Type":    "application/json",
			},
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				bodyContains:    `received: {"amount":100}`,
			},
		},
		{
			name:        "client does not accept gzip",
			requestBody: "plain request",
			headers:     map[string]string{},
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "",
				bodyContains:    "received: plain request",
			},
		},
		{
			name:        "gzip-compressed request body",
			requestBody: `{"dose_date":"2024-05-11"}`,
			gzipRequest: true,
			headers: map[string]string{
				"Content-Encoding": "gzip",
			},
			want: want{
				statusCode:   http.StatusOK,
				bodyContains: `received: {"dose_date":"2024-05-11"}`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(tt.requestBody)
			if tt.gzipRequest {
				var buf bytes.Buffer
				gw := gzip.NewWriter(&buf)
				if _, err := gw.Write([]byte(tt.requestBody)); err != nil {
					t.Fatalf("gzip write: %v", err)
				}
				if err := gw.Close(); err != nil {
					t.Fatalf("gzip close: %v", err)
				}
				body = &buf
			}

			req := httptest.NewRequest(http.MethodPost, "/", body)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			rec := httptest.NewRecorder()
			h := GzipMiddleware(http.HandlerFunc(gzipTestHandler))
			h.ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.want.statusCode {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want.statusCode)
			}
			if got := res.Header.Get("Content-Encoding"); got != tt.want.contentEncoding {
				t.Fatalf("content encoding = %q, want %q", got, tt.want.contentEncoding)
			}

			var reader io.Reader = res.Body
			if res.Header.Get("Content-Encoding") == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("gzip reader: %v", err)
				}
				defer gr.Close()
				reader = gr
			}

			respBody, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if !strings.Contains(string(respBody), tt.want.bodyContains) {
				t.Fatalf("body = %q, want it to contain %q", respBody, tt.want.bodyContains)
			}
		})
	}
}

func TestGzipMiddleware_BadGzipBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not gzip at all"))
	req.Header.Set("Content-Encoding", "gzip")

	rec := httptest.NewRecorder()
	h := GzipMiddleware(http.HandlerFunc(gzipTestHandler))
	h.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}
