package schemas

// -- HAR Capture Models --
// Minimal HTTP Archive (HAR 1.2) structures populated by the network
// harvester. Only the fields the harvester can observe from inside an
// http.RoundTripper are modeled; detailed connection timings are not
// available at that layer.

// HAR is the top-level archive document.
type HAR struct {
	Log HARLog `json:"log"`
}

// HARLog holds the creator identity and the captured entries.
type HARLog struct {
	Version string     `json:"version"`
	Creator HARCreator `json:"creator"`
	Entries []HAREntry `json:"entries"`
}

// HARCreator identifies the capturing software.
type HARCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HAREntry records one request/response exchange.
type HAREntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         HARRequest  `json:"request"`
	Response        HARResponse `json:"response"`
	Cache           HARCache    `json:"cache"`
	Timings         HARTimings  `json:"timings"`
}

// HARRequest describes the outgoing request.
type HARRequest struct {
	Method      string           `json:"method"`
	URL         string           `json:"url"`
	HTTPVersion string           `json:"httpVersion"`
	Headers     []HARHeader      `json:"headers"`
	QueryString []HARQueryString `json:"queryString"`
	PostData    *HARPostData     `json:"postData,omitempty"`
	HeadersSize int64            `json:"headersSize"`
	BodySize    int64            `json:"bodySize"`
}

// HARResponse describes the received response.
type HARResponse struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []HARHeader `json:"headers"`
	Content     HARContent  `json:"content"`
	RedirectURL string      `json:"redirectURL"`
	HeadersSize int64       `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
}

// HARContent carries the response body, base64-encoded when binary.
type HARContent struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

// HARPostData carries the request body.
type HARPostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// HARHeader is a single header name/value pair. Multi-valued headers appear
// as repeated entries.
type HARHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HARQueryString is a single query parameter pair.
type HARQueryString struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HARTimings is the simplified timing breakdown observable from a
// RoundTripper.
type HARTimings struct {
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// HARCache is present for format compliance; nothing is populated.
type HARCache struct{}
