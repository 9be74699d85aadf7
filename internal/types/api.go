package types

import "fmt"

// Request validation limits.
const (
	MaxURLLength      = 8192
	MaxFilenameLength = 1024
)

// FetchRequest represents an incoming fetch request.
type FetchRequest struct {
	URL string `json:"url"`
}

// Validate performs a cheap presence and length pre-check. Parsing, scheme
// policy, and every safety decision belong to the URL validator, which also
// reports precise rejection reasons.
func (r *FetchRequest) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("url is required")
	}
	if len(r.URL) > MaxURLLength {
		return fmt.Errorf("url exceeds maximum length of %d", MaxURLLength)
	}
	return nil
}

// Response is the JSON envelope for all API responses.
type Response struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Reason    Reason        `json:"reason,omitempty"`
	StartTime int64         `json:"startTimestamp"`
	EndTime   int64         `json:"endTimestamp"`
	Version   string        `json:"version"`
	Fetch     *FetchResult  `json:"fetch,omitempty"`
	Upload    *UploadResult `json:"upload,omitempty"`
}

// FetchResult carries the outcome of an allowed, completed fetch.
type FetchResult struct {
	URL              string `json:"url"`
	ResolvedAddress  string `json:"resolvedAddress"`
	StatusCode       int    `json:"statusCode"`
	ContentType      string `json:"contentType,omitempty"`
	Body             string `json:"body,omitempty"` // base64-encoded response body
	RedirectLocation string `json:"redirectLocation,omitempty"`
}

// UploadResult reports the accepted upload's descriptor back to the caller.
type UploadResult struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"sizeBytes"`
	Extension string `json:"extension"`
}

// Status values for API responses.
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
	StatusError    = "error"
)
