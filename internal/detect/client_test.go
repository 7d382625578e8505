package detect

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/frostbyte/callguard/internal/domain"
)

func TestAnalyze(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"label":"FAKE","confidence":0.87}`)
	}))
	defer srv.Close()

	v, err := NewClient(srv.URL).Analyze(context.Background(), []byte("audio-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if v.Label != domain.LabelFake || v.Confidence != 0.87 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	if string(gotBody) != "audio-bytes" {
		t.Fatalf("chunk not sent verbatim: %q", gotBody)
	}
	if gotContentType != "application/octet-stream" {
		t.Fatalf("unexpected content type %q", gotContentType)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Analyze(context.Background(), []byte("x")); err == nil {
		t.Fatal("non-200 status must be an error")
	}
	if _, err := NewClient("http://127.0.0.1:1/analyze").Analyze(context.Background(), []byte("x")); err == nil {
		t.Fatal("unreachable service must be an error")
	}
}
