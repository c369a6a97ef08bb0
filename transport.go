package goSession

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/MrEthical07/goSession/internal/redact"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/middleware"
)

const (
	// snippetReadLimit bounds how much of a rejected response is buffered for the
	// invalidation event.
	snippetReadLimit = 4 << 10
	drainLimit       = 4 << 10
)

type retryMarkerKey struct{}

// Transport is the session request pipeline. It attaches the access token, repairs a
// 401 with one shared refresh and one replay, and publishes an [InvalidationEvent]
// when the failure cannot be repaired.
type Transport struct {
	m    *Manager
	base http.RoundTripper
}

// RoundTrip implements http.RoundTripper. The request passed in is never modified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	m := t.m
	req, requestID := middleware.EnsureRequestID(req)
	req = req.Clone(req.Context())
	if err := makeReplayable(req); err != nil {
		return nil, err
	}
	ctx := req.Context()
	retried := ctx.Value(retryMarkerKey{}) != nil
	isRefresh := m.gateway.IsRefreshURL(req.URL)

	token, generation := m.requestSession()
	if token != "" && !isRefresh && !retried {
		if skew := m.config.Session.ProactiveRefreshSkew; skew > 0 && jwt.ExpiresWithin(token, skew, m.now()) {
			m.metrics.Inc(MetricProactiveRefresh)
			if err := m.refresh(ctx, "proactive", token); err != nil {
				m.logger.Debug("goSession: proactive refresh failed", "request_id", requestID, "error", err)
			} else if next, gen := m.requestSession(); next != "" {
				token, generation = next, gen
			}
		}
	}

	resp, err := t.base.RoundTrip(authorize(req, token, false))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	m.metrics.Inc(MetricRequestUnauthorized)

	switch {
	case isRefresh:
		return t.invalidate(req, resp, ReasonRefreshRejected, requestID, generation, token), nil
	case retried:
		return t.invalidate(req, resp, ReasonRetryRejected, requestID, generation, token), nil
	case token == "":
		return resp, nil
	}
	return t.repair(req, resp, requestID, token, generation)
}

// repair joins the refresh ticket for a request rejected with token and replays it
// once with the token the ticket produced.
func (t *Transport) repair(req *http.Request, resp *http.Response, requestID, sent string, generation uint64) (*http.Response, error) {
	m := t.m
	ctx := req.Context()

	var err error
	for joins := 0; joins < 2; joins++ {
		err = m.refresh(ctx, "request", sent)
		if !errors.Is(err, ErrRefreshSuperseded) {
			break
		}
		// A login or logout overtook the ticket.
		current, _ := m.requestSession()
		if current == "" {
			return resp, nil
		}
		if current != sent {
			err = nil
			break
		}
	}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		drainAndClose(resp)
		return nil, ctx.Err()
	case errors.Is(err, ErrRefreshSuperseded), errors.Is(err, ErrManagerNotReady):
		return resp, nil
	case errors.Is(err, ErrRefreshInvalid):
		return t.invalidate(req, resp, ReasonRefreshInvalid, requestID, generation, sent), nil
	default:
		return t.invalidate(req, resp, ReasonRefreshUnavailable, requestID, generation, sent), nil
	}

	current, currentGen := m.requestSession()
	if current == "" {
		return resp, nil
	}
	drainAndClose(resp)

	m.metrics.Inc(MetricRequestRetried)
	retry := authorize(req, current, true)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}

	resp, err = t.base.RoundTrip(retry)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	m.metrics.Inc(MetricRequestUnauthorized)
	return t.invalidate(req, resp, ReasonRetryRejected, requestID, currentGen, current), nil
}

// invalidate publishes the event for a terminal 401 and hands the response back with
// its body intact.
func (t *Transport) invalidate(
	req *http.Request,
	resp *http.Response,
	reason InvalidationReason,
	requestID string,
	generation uint64,
	token string,
) *http.Response {
	m := t.m

	var head []byte
	if resp.Body != nil {
		head, _ = io.ReadAll(io.LimitReader(resp.Body, snippetReadLimit))
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(head), resp.Body), resp.Body}
	}

	ev := InvalidationEvent{
		Reason:      reason,
		URL:         sanitizeURL(req.URL),
		Method:      req.Method,
		Status:      resp.StatusCode,
		RequestID:   requestID,
		BodySnippet: redact.Snippet(head, m.config.Session.MaxSnippetBytes, token),
		Generation:  generation,
		At:          m.now(),
	}
	m.publishInvalidation(req.Context(), ev)
	return resp
}

// authorize returns a copy of req carrying token. retry marks the copy so a 401 on it
// is terminal.
func authorize(req *http.Request, token string, retry bool) *http.Request {
	ctx := req.Context()
	if retry {
		ctx = context.WithValue(ctx, retryMarkerKey{}, true)
	}
	out := req.Clone(ctx)
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out
}

// makeReplayable makes sure the body can be sent twice.
func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
}

func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.User = nil
	c.RawQuery = ""
	c.ForceQuery = false
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

/*
====================================
MANAGER HOOKS
====================================
*/

// requestSession returns the token to attach and the generation it belongs to.
func (m *Manager) requestSession() (string, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pair.AccessToken, m.generation
}

func (m *Manager) publishInvalidation(ctx context.Context, ev InvalidationEvent) {
	m.metrics.Inc(MetricInvalidationPublished)
	m.logger.Warn("goSession: request could not be authorized",
		"reason", string(ev.Reason),
		"request_id", ev.RequestID,
		"method", ev.Method,
		"url", ev.URL,
		"status", ev.Status,
	)
	m.emitAudit(ctx, AuditInvalidation, false, "", ev.RequestID, nil, func() map[string]string {
		return map[string]string{"reason": string(ev.Reason), "url": ev.URL}
	})
	m.bus.Publish(context.WithoutCancel(ctx), ev)
}
