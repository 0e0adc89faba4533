package authapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/sessionkit/core/logger"
)

// Hooks is the reaction sink for observed HTTP exchanges. The session
// manager implements it. Calls are dispatched on their own goroutines so
// a reaction (which may touch storage) never blocks the request path.
type Hooks interface {
	// AuthFailure fires on a 401 from a non-exempt endpoint.
	AuthFailure(endpoint string)

	// QuotaSignal fires on a 429 or a payload reporting an exhausted
	// call budget.
	QuotaSignal(endpoint string)

	// BillableCall fires on a successful call to a budget-consuming
	// endpoint.
	BillableCall(endpoint string)
}

// quotaSniffLimit bounds how much of a payload is inspected for the
// quota marker.
const quotaSniffLimit = 4 * 1024

// interceptor observes every response flowing through the client and
// translates status codes into hook calls. A 401 from /auth/login means
// bad credentials and a 401 from /subscription/status means "can't check
// the meter"; both are exempt from the session-invalid escalation.
type interceptor struct {
	next     http.RoundTripper
	hooks    func() Hooks
	exempt   map[string]struct{}
	billable map[string]struct{}
	log      *slog.Logger
}

func newInterceptor(next http.RoundTripper, hooks func() Hooks, billable []string, log *slog.Logger) *interceptor {
	billableSet := make(map[string]struct{}, len(billable))
	for _, path := range billable {
		billableSet[path] = struct{}{}
	}

	return &interceptor{
		next:  next,
		hooks: hooks,
		exempt: map[string]struct{}{
			EndpointLogin:        {},
			EndpointSubscription: {},
		},
		billable: billableSet,
		log:      log,
	}
}

func (i *interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := i.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	hooks := i.hooks()
	if hooks == nil {
		return resp, nil
	}

	path := req.URL.Path

	switch {
	case resp.StatusCode < 300:
		if _, ok := i.billable[path]; ok {
			if i.sniffQuotaExhausted(resp) {
				go hooks.QuotaSignal(path)
			}
			go hooks.BillableCall(path)
		}

	case resp.StatusCode == http.StatusUnauthorized:
		if _, ok := i.exempt[path]; !ok {
			i.log.Info("escalating rejected token",
				logger.Component("authapi"), logger.Endpoint(path))
			go hooks.AuthFailure(path)
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		go hooks.QuotaSignal(path)

	case resp.StatusCode >= 400:
		if i.sniffQuotaExhausted(resp) {
			go hooks.QuotaSignal(path)
		}
	}

	return resp, nil
}

// sniffQuotaExhausted peeks at the response payload for the quota
// marker, restoring the body so downstream decoding is unaffected.
func (i *interceptor) sniffQuotaExhausted(resp *http.Response) bool {
	if resp.Body == nil {
		return false
	}

	peek := make([]byte, quotaSniffLimit)
	n, _ := io.ReadFull(resp.Body, peek)
	peek = peek[:n]

	rest := resp.Body
	resp.Body = readCloser{
		Reader: io.MultiReader(bytes.NewReader(peek), rest),
		Closer: rest,
	}

	if !bytes.Contains(peek, []byte("quota")) {
		return false
	}

	var probe struct {
		Code           string `json:"code"`
		QuotaExhausted bool   `json:"quotaExhausted"`
	}
	if err := json.Unmarshal(peek, &probe); err == nil {
		return probe.QuotaExhausted || probe.Code == codeQuotaExhausted
	}

	// Unparseable payload mentioning quota: stay conservative and treat
	// it as a signal; the refresh it triggers is cheap and debounced.
	return bytes.Contains(peek, []byte(codeQuotaExhausted))
}

type readCloser struct {
	io.Reader
	io.Closer
}
