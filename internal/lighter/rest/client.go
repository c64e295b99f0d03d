package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const maxErrorBody = 2048

type Client struct {
	baseURL string
	http    *resty.Client
	log     *zap.Logger
	onRetry func(method, path string)
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
	c.http = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(timeout).
		SetLogger(log.Sugar()).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "lighter-sdk-go").
		AddRetryCondition(retryableGet).
		AddRetryHook(c.retryHook)
	return c
}

// SetRetries bounds transparent retries of GET requests. Other methods are never retried.
func (c *Client) SetRetries(count int, wait time.Duration) {
	if count < 0 {
		count = 0
	}
	c.http.SetRetryCount(count).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(8 * wait)
}

// SetRetryObserver registers a callback invoked before each retry attempt.
func (c *Client) SetRetryObserver(fn func(method, path string)) {
	c.onRetry = fn
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Get(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	return c.Request(ctx, http.MethodGet, path, params, nil)
}

func (c *Client) PostForm(ctx context.Context, path string, form url.Values) (map[string]any, error) {
	return c.Request(ctx, http.MethodPost, path, nil, form)
}

// Request performs one call against the exchange API and decodes the JSON object body.
// A url.Values body is sent form-encoded; any other non-nil body is sent as JSON.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body any) (map[string]any, error) {
	req := c.http.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParamsFromValues(params)
	}
	switch b := body.(type) {
	case nil:
	case url.Values:
		req.SetFormDataFromValues(b)
	default:
		req.SetHeader("Content-Type", "application/json").SetBody(b)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return nil, newHTTPError(method, path, resp)
	}
	return decodeObject(resp.Body())
}

func (c *Client) retryHook(resp *resty.Response, err error) {
	method, path := "", ""
	if resp != nil && resp.Request != nil {
		method = resp.Request.Method
		path = resp.Request.URL
	}
	// next attempt dials a fresh connection
	c.http.GetClient().CloseIdleConnections()
	c.log.Debug("retrying request", zap.String("method", method), zap.String("path", path), zap.Error(err))
	if c.onRetry != nil {
		c.onRetry(method, path)
	}
}

func retryableGet(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return resp.Request.Context().Err() == nil
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func newHTTPError(method, path string, resp *resty.Response) *HTTPError {
	body := resp.Body()
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	httpErr := &HTTPError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode(),
		Message:    strings.TrimSpace(string(body)),
		Header:     resp.Header(),
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg, ok := payload["message"].(string); ok && msg != "" {
			httpErr.Message = msg
		}
		if code, ok := intFromAny(payload["code"]); ok {
			httpErr.Code = code
		}
	}
	return httpErr
}

func decodeObject(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if data == nil {
		return nil, errors.New("decode response: null body")
	}
	return data, nil
}

func intFromAny(v any) (int, bool) {
	switch val := v.(type) {
	case json.Number:
		i, err := val.Int64()
		return int(i), err == nil
	case float64:
		return int(val), true
	case int:
		return val, true
	case int64:
		return int(val), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		return i, err == nil
	default:
		return 0, false
	}
}
