package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGetDecodesNumbersAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/orderBooks" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("market_id"); got != "7" {
			t.Fatalf("expected market_id=7, got %q", got)
		}
		_, _ = w.Write([]byte(`{"code":200,"min_base_amount":"0.0001","market_id":7}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zap.NewNop())
	resp, err := c.Get(context.Background(), "/api/v1/orderBooks", url.Values{"market_id": {"7"}})
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	id, ok := resp["market_id"].(json.Number)
	if !ok || id.String() != "7" {
		t.Fatalf("expected json.Number 7, got %#v", resp["market_id"])
	}
}

func TestEmptyBodyDecodesToEmptyMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second, nil).Get(context.Background(), "/", nil)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if resp == nil || len(resp) != 0 {
		t.Fatalf("expected empty map, got %#v", resp)
	}
}

func TestHTTPErrorCarriesStatusAndMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "abc")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21100,"message":"invalid param"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, zap.NewNop()).Get(context.Background(), "/api/v1/account", nil)
	if !errors.Is(err, ErrHTTP) {
		t.Fatalf("expected ErrHTTP, got %v", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %T", err)
	}
	if httpErr.StatusCode != http.StatusBadRequest || httpErr.Code != 21100 || httpErr.Message != "invalid param" {
		t.Fatalf("unexpected error fields: %+v", httpErr)
	}
	if httpErr.Header.Get("X-Request-Id") != "abc" {
		t.Fatalf("expected response headers to be kept")
	}
	if code, ok := StatusCode(err); !ok || code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d %v", code, ok)
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"height":12}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zap.NewNop())
	c.SetRetries(2, time.Millisecond)
	var retries atomic.Int32
	c.SetRetryObserver(func(method, path string) { retries.Add(1) })

	if _, err := c.Get(context.Background(), "/api/v1/currentHeight", nil); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
	if retries.Load() != 2 {
		t.Fatalf("expected 2 retries observed, got %d", retries.Load())
	}
}

func TestGetGivesUpAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zap.NewNop())
	c.SetRetries(1, time.Millisecond)
	_, err := c.Get(context.Background(), "/", nil)
	if code, ok := StatusCode(err); !ok || code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zap.NewNop())
	c.SetRetries(3, time.Millisecond)
	if _, err := c.Get(context.Background(), "/missing", nil); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestPostFormIsNeverRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("tx_type") != "14" {
			t.Fatalf("expected tx_type=14, got %q", r.PostForm.Get("tx_type"))
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zap.NewNop())
	c.SetRetries(3, time.Millisecond)
	_, err := c.PostForm(context.Background(), "/api/v1/sendTx", url.Values{"tx_type": {"14"}})
	if !errors.Is(err, ErrHTTP) {
		t.Fatalf("expected http error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single POST, got %d", calls.Load())
	}
}

func TestCheckCode(t *testing.T) {
	if err := CheckCode("/x", map[string]any{"code": json.Number("200")}); err != nil {
		t.Fatalf("expected nil for code 200, got %v", err)
	}
	if err := CheckCode("/x", map[string]any{"height": 1}); err != nil {
		t.Fatalf("expected nil without code, got %v", err)
	}
	err := CheckCode("/api/v1/sendTx", map[string]any{"code": json.Number("21120"), "message": "invalid nonce"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 21120 || apiErr.Message != "invalid nonce" {
		t.Fatalf("expected api error, got %v", err)
	}
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("expected ErrAPI")
	}
}
