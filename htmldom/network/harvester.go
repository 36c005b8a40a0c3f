package network

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JoeyJohnson82/ScCrawler/api/schemas"
)

// Harvester is an http.RoundTripper middleware that records every exchange
// as a HAR entry and tracks in-flight requests so callers can wait for the
// network to settle.
type Harvester struct {
	transport      http.RoundTripper
	logger         *zap.Logger
	captureContent bool

	mu             sync.Mutex
	entries        []schemas.HAREntry
	activeRequests int
	lastActivity   time.Time
}

// NewHarvester wraps transport with traffic capture. With captureContent set,
// response bodies are stored in the archive, base64-encoded when binary.
func NewHarvester(transport http.RoundTripper, logger *zap.Logger, captureContent bool) *Harvester {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{
		transport:      transport,
		logger:         logger,
		captureContent: captureContent,
		lastActivity:   time.Now(),
		entries:        make([]schemas.HAREntry, 0),
	}
}

// RoundTrip executes the request and records the transaction. Bodies are
// buffered and restored so downstream consumers read them untouched.
func (h *Harvester) RoundTrip(req *http.Request) (*http.Response, error) {
	h.trackActivity(true)
	defer h.trackActivity(false)

	start := time.Now()

	var requestBody []byte
	if req.Body != nil && req.ContentLength > 0 {
		var err error
		requestBody, err = io.ReadAll(req.Body)
		if err != nil {
			h.logger.Warn("Failed to read request body for capture", zap.Error(err))
		}
		req.Body = io.NopCloser(bytes.NewBuffer(requestBody))
	}

	resp, err := h.transport.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		// Failed exchanges carry no response to archive.
		return resp, err
	}

	var responseBody []byte
	if resp.Body != nil {
		var readErr error
		responseBody, readErr = io.ReadAll(resp.Body)
		if readErr != nil {
			h.logger.Warn("Failed to read response body for capture", zap.Error(readErr))
		}
		resp.Body = io.NopCloser(bytes.NewBuffer(responseBody))
	}

	h.recordEntry(req, resp, start, duration, requestBody, responseBody)
	return resp, nil
}

// trackActivity maintains the in-flight counter used by WaitNetworkIdle.
func (h *Harvester) trackActivity(start bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if start {
		h.activeRequests++
	} else {
		h.activeRequests--
		if h.activeRequests < 0 {
			h.activeRequests = 0
		}
	}
	h.lastActivity = time.Now()
}

// WaitNetworkIdle blocks until no request is in flight and quietPeriod has
// passed since the last activity, or the context ends.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.mu.Lock()
			active := h.activeRequests
			quietFor := time.Since(h.lastActivity)
			h.mu.Unlock()

			if active == 0 && quietFor >= quietPeriod {
				h.logger.Debug("Network idle reached", zap.Duration("quiet_for", quietFor))
				return nil
			}
		}
	}
}

func (h *Harvester) recordEntry(req *http.Request, resp *http.Response, start time.Time, duration time.Duration, reqBody, respBody []byte) {
	entry := schemas.HAREntry{
		StartedDateTime: start.Format(time.RFC3339Nano),
		Time:            float64(duration.Milliseconds()),
		Request: schemas.HARRequest{
			Method:      req.Method,
			URL:         req.URL.String(),
			HTTPVersion: req.Proto,
			Headers:     headerPairs(req.Header),
			QueryString: queryPairs(req.URL.Query()),
			BodySize:    int64(len(reqBody)),
			// Raw header sizes are not observable from a RoundTripper.
			HeadersSize: -1,
		},
		Response: schemas.HARResponse{
			Status:      resp.StatusCode,
			StatusText:  http.StatusText(resp.StatusCode),
			HTTPVersion: resp.Proto,
			Headers:     headerPairs(resp.Header),
			RedirectURL: resp.Header.Get("Location"),
			HeadersSize: -1,
		},
		Timings: schemas.HARTimings{
			Wait: float64(duration.Milliseconds()),
		},
	}

	if len(reqBody) > 0 {
		entry.Request.PostData = &schemas.HARPostData{
			MimeType: req.Header.Get("Content-Type"),
			Text:     string(reqBody),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	bodySize := int64(len(respBody))
	entry.Response.BodySize = bodySize
	entry.Response.Content.Size = bodySize
	entry.Response.Content.MimeType = contentType

	if h.captureContent && bodySize > 0 {
		if isTextMime(contentType) {
			entry.Response.Content.Text = string(respBody)
		} else {
			entry.Response.Content.Encoding = "base64"
			entry.Response.Content.Text = base64.StdEncoding.EncodeToString(respBody)
		}
	}

	h.mu.Lock()
	h.entries = append(h.entries, entry)
	h.mu.Unlock()
}

// GenerateHAR snapshots the captured entries into a HAR document.
func (h *Harvester) GenerateHAR() *schemas.HAR {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := make([]schemas.HAREntry, len(h.entries))
	copy(entries, h.entries)

	return &schemas.HAR{
		Log: schemas.HARLog{
			Version: "1.2",
			Creator: schemas.HARCreator{
				Name:    "sccrawler",
				Version: "1.0",
			},
			Entries: entries,
		},
	}
}

func isTextMime(mimeType string) bool {
	m := strings.ToLower(mimeType)
	return strings.HasPrefix(m, "text/") ||
		strings.Contains(m, "javascript") ||
		strings.Contains(m, "json") ||
		strings.Contains(m, "xml")
}

// headerPairs flattens http.Header into HAR pairs; multi-valued headers such
// as Set-Cookie become repeated entries.
func headerPairs(h http.Header) []schemas.HARHeader {
	pairs := make([]schemas.HARHeader, 0, len(h))
	for k, values := range h {
		for _, v := range values {
			pairs = append(pairs, schemas.HARHeader{Name: k, Value: v})
		}
	}
	return pairs
}

func queryPairs(q url.Values) []schemas.HARQueryString {
	pairs := make([]schemas.HARQueryString, 0, len(q))
	for k, values := range q {
		for _, v := range values {
			pairs = append(pairs, schemas.HARQueryString{Name: k, Value: v})
		}
	}
	return pairs
}
