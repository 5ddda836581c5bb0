package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/pribylovaa/nihongo-study/pkg/envelope"
)

const maxBodyBytes = 10 << 20

// Request - описание одного вызова API. Путь задаётся относительно BaseURL.
// Body: nil, []byte, string или значение для json.Marshal.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
}

// Response - успешный (2xx) ответ с прочитанным телом.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsJSON сообщает, что ответ имеет тип application/json.
func (r *Response) IsJSON() bool {
	return isJSON(r.Header)
}

// Text возвращает тело как строку.
func (r *Response) Text() string { return string(r.Body) }

// DecodeJSON разбирает тело в v.
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Do выполняет запрос через Auth Guard.
//
// Успешный ответ возвращается без изменений. На 401 (кроме probe и
// login/signup/refresh) сессия обновляется через Coordinator, и запрос
// повторяется один раз; повторная 401 возвращается как *HTTPError.
// 401/403 от probe возвращается как *SessionError (errors.Is(err, ErrUnauthenticated)).
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("apiclient.Do: %w", err)
	}

	retried := false
	for {
		seen := c.refresher.Epoch()

		resp, err := c.send(ctx, req, body)
		if err == nil {
			return resp, nil
		}

		var he *HTTPError
		if !errors.As(err, &he) {
			return nil, err
		}

		switch c.guard.classify(req.Path, he.StatusCode, retried) {
		case unauthenticated:
			return nil, &SessionError{Op: "probe", LoginPath: c.loginPath, Err: he}
		case refreshAndRetry:
			if rerr := c.refresher.Refresh(ctx, seen); rerr != nil {
				return nil, rerr
			}
			retried = true
		default:
			return nil, err
		}
	}
}

// send выполняет ровно один HTTP-запрос без участия Auth Guard.
func (c *Client) send(ctx context.Context, req Request, body []byte) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := c.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, &TransportError{Method: method, Path: req.Path, Err: err}
	}
	hreq.Header = c.header.Clone()
	for k, vs := range req.Header {
		hreq.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return nil, &TransportError{Method: method, Path: req.Path, Err: err}
	}
	defer hresp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(hresp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Method: method, Path: req.Path, Err: err}
	}

	if hresp.StatusCode < 200 || hresp.StatusCode >= 300 {
		return nil, newHTTPError(method, req.Path, hresp, raw)
	}

	return &Response{StatusCode: hresp.StatusCode, Header: hresp.Header, Body: raw}, nil
}

// refreshSession - RefreshFunc клиента: POST /api/auth/refresh без Auth Guard.
func (c *Client) refreshSession(ctx context.Context) error {
	_, err := c.send(ctx, Request{Method: http.MethodPost, Path: PathRefresh}, nil)
	return err
}

// Call выполняет запрос и разбирает ответ как конверт {resultCode, msg, data}.
func Call[T any](ctx context.Context, c *Client, req Request) (*envelope.Envelope[T], error) {
	const op = "apiclient.Call"

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	if !resp.IsJSON() {
		return nil, fmt.Errorf("%s: %s %s: %w", op, req.Method, req.Path, ErrUnexpectedContent)
	}

	env, err := envelope.Decode[T](resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return env, nil
}

func newHTTPError(method, path string, resp *http.Response, body []byte) *HTTPError {
	he := &HTTPError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}

	if isJSON(resp.Header) && len(body) > 0 {
		if env, err := envelope.Decode[json.RawMessage](body); err == nil {
			he.ResultCode = env.ResultCode
			he.Msg = env.Msg
		}
	}

	return he
}

func encodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case io.Reader:
		return io.ReadAll(b)
	default:
		return json.Marshal(v)
	}
}

func isJSON(h http.Header) bool {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
