package arcgis

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestGetAddsFormatAndKeepsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("f") != "json" || r.URL.Query().Get("token") != "abc" || r.URL.Query().Get("x") != "1" {
			t.Errorf("query=%q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"name":"ok"}`))
	}))
	defer srv.Close()

	var out struct {
		Name string `json:"name"`
	}
	err := NewClient().Get(context.Background(), srv.URL+"/layer?token=abc", url.Values{"x": {"1"}}, &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.Name != "ok" {
		t.Fatalf("name=%q, want ok", out.Name)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":498,"message":"Invalid token.","details":[]}}`))
	}))
	defer srv.Close()

	err := NewClient().Get(context.Background(), srv.URL, nil, nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v, want *Error", err)
	}
	if apiErr.Code != 498 {
		t.Fatalf("code=%d, want 498", apiErr.Code)
	}
	if apiErr.Error() != "Invalid token. (code 498)" {
		t.Fatalf("message=%q", apiErr.Error())
	}
}

func TestHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewClient().Get(context.Background(), srv.URL, nil, nil); err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestPostFormCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewClient().PostForm(ctx, srv.URL, url.Values{"a": {"b"}}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}
