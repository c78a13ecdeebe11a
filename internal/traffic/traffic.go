// Package traffic implements TrafficCapture: an optional, adapter-agnostic
// recorder of request/response pairs, exported as an HTTP Archive (HAR) 1.2
// document on finalize, per spec §4.13.
//
// Producers (adapters) call Publish and never block on it beyond acquiring a
// mutex; when the buffer is at capacity the oldest entry is dropped with a
// logged warning rather than applying backpressure to the request path,
// matching spec §5's "drop oldest with a warning — never block the request
// path" policy for this component specifically.
package traffic

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aipolab/aipo/internal/core"
)

// Event is one captured request/response/timing tuple, as an adapter saw it.
type Event struct {
	Method          string
	URL             string
	RequestHeaders  map[string]string
	RequestBody     []byte
	StatusCode      int
	StatusText      string
	ResponseHeaders map[string]string
	ResponseBody    []byte
	StartedAt       time.Time
	Duration        time.Duration
}

// Capture buffers Events up to Capacity and renders them to HAR on Finalize.
type Capture struct {
	mu       sync.Mutex
	events   []Event
	capacity int
	dropped  int
	logger   core.Logger
}

// New builds a Capture bounded to capacity events (0 => 1000).
func New(capacity int, logger core.Logger) *Capture {
	if capacity <= 0 {
		capacity = 1000
	}
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Capture{capacity: capacity, logger: logger}
}

// Publish records ev, dropping the oldest buffered event (with a warning)
// if the buffer is already at capacity.
func (c *Capture) Publish(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.events) >= c.capacity {
		c.events = c.events[1:]
		c.dropped++
		c.logger.Warn("traffic capture buffer full, dropping oldest entry", map[string]interface{}{
			"capacity":     c.capacity,
			"total_dropped": c.dropped,
		})
	}
	c.events = append(c.events, ev)
}

// Dropped returns the number of events dropped so far due to capacity.
func (c *Capture) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// harDoc mirrors the top-level HAR 1.2 document shape.
type harDoc struct {
	Log harLog `json:"log"`
}

type harLog struct {
	Version string     `json:"version"`
	Creator harCreator `json:"creator"`
	Pages   []any      `json:"pages"`
	Entries []harEntry `json:"entries"`
}

type harCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type harEntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         harRequest  `json:"request"`
	Response        harResponse `json:"response"`
	Cache           struct{}    `json:"cache"`
	Timings         harTimings  `json:"timings"`
}

type harHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type harRequest struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []harHeader `json:"headers"`
	QueryString []any       `json:"queryString"`
	Cookies     []any       `json:"cookies"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int         `json:"bodySize"`
	PostData    *harContent `json:"postData,omitempty"`
}

type harResponse struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []harHeader `json:"headers"`
	Cookies     []any       `json:"cookies"`
	Content     harContent  `json:"content"`
	RedirectURL string      `json:"redirectURL"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int         `json:"bodySize"`
}

type harContent struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

type harTimings struct {
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// Finalize renders every buffered Event into a HAR 1.2 document and returns
// its JSON bytes (session.har contents).
func (c *Capture) Finalize(creatorVersion string) ([]byte, error) {
	c.mu.Lock()
	events := make([]Event, len(c.events))
	copy(events, c.events)
	c.mu.Unlock()

	entries := make([]harEntry, 0, len(events))
	for _, ev := range events {
		entries = append(entries, toHAREntry(ev))
	}

	doc := harDoc{Log: harLog{
		Version: "1.2",
		Creator: harCreator{Name: "aipo", Version: creatorVersion},
		Pages:   []any{},
		Entries: entries,
	}}
	return json.MarshalIndent(doc, "", "  ")
}

func toHAREntry(ev Event) harEntry {
	reqContent, reqMime := encodeBody(ev.RequestBody, ev.RequestHeaders)
	respContent, respMime := encodeBody(ev.ResponseBody, ev.ResponseHeaders)

	entry := harEntry{
		StartedDateTime: ev.StartedAt.UTC().Format(time.RFC3339Nano),
		Time:            float64(ev.Duration.Milliseconds()),
		Request: harRequest{
			Method:      ev.Method,
			URL:         ev.URL,
			HTTPVersion: "HTTP/1.1",
			Headers:     toHARHeaders(ev.RequestHeaders),
			QueryString: []any{},
			Cookies:     []any{},
			HeadersSize: -1,
			BodySize:    len(ev.RequestBody),
		},
		Response: harResponse{
			Status:      ev.StatusCode,
			StatusText:  ev.StatusText,
			HTTPVersion: "HTTP/1.1",
			Headers:     toHARHeaders(ev.ResponseHeaders),
			Cookies:     []any{},
			Content:     respContent,
			HeadersSize: -1,
			BodySize:    len(ev.ResponseBody),
		},
		Timings: harTimings{Send: 0, Wait: float64(ev.Duration.Milliseconds()), Receive: 0},
	}
	if len(ev.RequestBody) > 0 {
		entry.Request.PostData = &harContent{
			Size:     reqContent.Size,
			MimeType: reqMime,
			Text:     reqContent.Text,
			Encoding: reqContent.Encoding,
		}
	}
	return entry
}

func toHARHeaders(headers map[string]string) []harHeader {
	out := make([]harHeader, 0, len(headers))
	for k, v := range headers {
		out = append(out, harHeader{Name: k, Value: v})
	}
	return out
}

// encodeBody returns a harContent for body, base64-encoding it (with
// encoding=base64, per spec §4.13) whenever it isn't valid UTF-8 text.
func encodeBody(body []byte, headers map[string]string) (harContent, string) {
	mime := headers["Content-Type"]
	if mime == "" {
		mime = "application/octet-stream"
	}
	if utf8.Valid(body) {
		return harContent{Size: len(body), MimeType: mime, Text: string(body)}, mime
	}
	return harContent{
		Size:     len(body),
		MimeType: mime,
		Text:     base64.StdEncoding.EncodeToString(body),
		Encoding: "base64",
	}, mime
}
