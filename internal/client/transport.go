package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

const refreshedTokenHeader = "X-Refreshed-Token"

var errRefreshSuppressed = errors.New("refresh suppressed during cooldown")

type refreshFunc func(ctx context.Context) (string, error)

// Transport authorizes requests with the cached access token
// On 401 it refreshes the token once and retries the request once
// Tokens seen in the side-channel header replace the cached one
type Transport struct {
	base     http.RoundTripper
	cache    *TokenCache
	refresh  refreshFunc
	cooldown time.Duration
	timeout  time.Duration
	now      func() time.Time

	group singleflight.Group
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	stale := t.cache.Token()

	resp, err := t.send(req, stale)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !rewindable(req) {
		return resp, nil
	}

	fresh, err := t.renew(req.Context(), stale)
	if err != nil {
		// The first 401 is the answer
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	retry := req
	if req.Body != nil && req.Body != http.NoBody {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry = req.Clone(req.Context())
		retry.Body = body
	}

	return t.send(retry, fresh)
}

func (t *Transport) send(req *http.Request, token string) (*http.Response, error) {
	r := req.Clone(req.Context())
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base.RoundTrip(r)
	if err != nil {
		return nil, err
	}

	if refreshed := resp.Header.Get(refreshedTokenHeader); refreshed != "" && refreshed != t.cache.Token() {
		t.cache.set(refreshed, t.now())
	}

	return resp, nil
}

// renew returns a token newer than stale, refreshing the session if nobody did it yet
// Concurrent callers share one refresh call. The call outlives a caller that gives up,
// so the others still get the token
func (t *Transport) renew(ctx context.Context, stale string) (string, error) {
	flight := t.group.DoChan("refresh", func() (any, error) {
		if current := t.cache.Token(); current != "" && current != stale {
			return current, nil
		}

		if updated := t.cache.UpdatedAt(); !updated.IsZero() && t.now().Sub(updated) < t.cooldown {
			return "", errRefreshSuppressed
		}

		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
		defer cancel()

		token, err := t.refresh(refreshCtx)
		if err != nil {
			return "", err
		}
		t.cache.set(token, t.now())

		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func rewindable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}
