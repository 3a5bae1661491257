// Package intercept observes the host page's outbound HTTP traffic without
// altering it. The Interception Port decouples observer logic from the
// hooking mechanism: the stock implementation is an http.RoundTripper tee,
// but anything that can hand over request/response body copies satisfies it.
package intercept

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Candidate is a raw (url, request body, response body) tuple observed on the
// wire, not yet known to represent an accepted submission.
type Candidate struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	RequestBody  []byte    `json:"requestBody,omitempty"`
	ResponseBody []byte    `json:"responseBody"`
	ObservedAt   time.Time `json:"observedAt"`
}

// Port receives body copies from whatever interception mechanism is in use.
// Implementations must not block: the original call's timing must be
// unchanged as seen by the page.
type Port interface {
	OnRequestObserved(url string, body []byte)
	OnResponseObserved(url string, body []byte)
}

// Observer pairs request and response bodies per URL, applies the cheap
// pre-filter, and emits Candidate events. It implements Port and is safe for
// concurrent use: Transport is an http.RoundTripper, so observations can
// arrive from any number of goroutines.
type Observer struct {
	filter  *Filter
	emit    func(*Candidate)
	mu      sync.Mutex
	pending map[string][]byte // url -> last request body
	metrics *Metrics
}

// NewObserver creates an observer that calls emit for each candidate that
// passes the filter. emit runs on the observing goroutine and must be fast;
// publish to a bus rather than doing work inline.
func NewObserver(filter *Filter, emit func(*Candidate)) *Observer {
	if filter == nil {
		filter = NewFilter(nil)
	}
	return &Observer{
		filter:  filter,
		emit:    emit,
		pending: make(map[string][]byte),
		metrics: defaultMetrics,
	}
}

// OnRequestObserved records the request body so it can be paired with the
// response for the same URL.
func (o *Observer) OnRequestObserved(url string, body []byte) {
	o.metrics.requestsObserved.Inc()
	if len(body) == 0 {
		return
	}
	o.mu.Lock()
	o.pending[url] = body
	o.mu.Unlock()
}

// OnResponseObserved runs the pre-filter and, on a JSON body that passes,
// emits a Candidate. Parse failures are swallowed: most intercepted traffic
// is unrelated to submissions.
func (o *Observer) OnResponseObserved(url string, body []byte) {
	o.metrics.responsesObserved.Inc()

	o.mu.Lock()
	reqBody := o.pending[url]
	delete(o.pending, url)
	o.mu.Unlock()

	if !o.filter.Match(url, reqBody) {
		o.metrics.filtered.Inc()
		return
	}
	if !json.Valid(body) {
		o.metrics.parseFailures.Inc()
		return
	}

	cand := &Candidate{
		ID:           uuid.NewString(),
		URL:          url,
		RequestBody:  reqBody,
		ResponseBody: body,
		ObservedAt:   time.Now(),
	}
	o.metrics.candidatesEmitted.Inc()
	if o.emit != nil {
		o.emit(cand)
	}
}

// Filter is the cheap pre-filter applied before any JSON parsing: a URL
// fragment allow-list OR a structural check that the request body carries
// both a code field and a language field.
type Filter struct {
	fragments []string
}

// DefaultFragments are the endpoint-name fragments of the submission flow.
var DefaultFragments = []string{"/submit/", "/submissions/detail/", "/check/", "/judge/"}

// NewFilter builds a filter over the given URL fragments. nil uses
// DefaultFragments.
func NewFilter(fragments []string) *Filter {
	if fragments == nil {
		fragments = DefaultFragments
	}
	return &Filter{fragments: fragments}
}

// Match reports whether the call is worth parsing.
func (f *Filter) Match(url string, requestBody []byte) bool {
	for _, frag := range f.fragments {
		if strings.Contains(url, frag) {
			return true
		}
	}
	return hasCodeAndLanguage(requestBody)
}

// hasCodeAndLanguage does a shallow key scan of the request body. It decodes
// one level of JSON (plus a "data" wrapper) instead of the full graph; this
// runs on every observed call.
func hasCodeAndLanguage(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return false
	}
	if wrapped, ok := top["data"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(wrapped, &inner); err == nil {
			top = inner
		}
	}
	var hasCode, hasLang bool
	for key := range top {
		lowered := strings.ToLower(key)
		if strings.Contains(lowered, "code") && !strings.Contains(lowered, "lang") {
			hasCode = true
		}
		if strings.Contains(lowered, "lang") {
			hasLang = true
		}
	}
	return hasCode && hasLang
}

// Transport is an http.RoundTripper that tees request and response bodies to
// a Port while returning the original response unchanged. The page-facing
// stream is never consumed: bodies are duplicated into buffers and the
// originals replaced with equivalent readers.
type Transport struct {
	Base http.RoundTripper
	Port Port

	// MaxBodyBytes caps how much of a body is copied. Zero means 1 MiB.
	MaxBodyBytes int64
}

const defaultMaxBodyBytes = 1 << 20

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Port == nil {
		return base.RoundTrip(req)
	}

	limit := t.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}

	url := req.URL.String()

	if req.Body != nil {
		data, err := io.ReadAll(io.LimitReader(req.Body, limit))
		req.Body.Close()
		if err == nil {
			t.Port.OnRequestObserved(url, data)
			req.Body = io.NopCloser(bytes.NewReader(data))
		} else {
			req.Body = io.NopCloser(bytes.NewReader(nil))
		}
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if resp.Body != nil {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, limit))
		resp.Body.Close()
		if readErr == nil {
			t.Port.OnResponseObserved(url, data)
			resp.Body = io.NopCloser(bytes.NewReader(data))
		} else {
			resp.Body = io.NopCloser(bytes.NewReader(nil))
		}
	}

	return resp, err
}
