package http

import (
	"context"
	"time"
)

// DefaultMaxResponseBytes caps response bodies read by HTTPClient.
const DefaultMaxResponseBytes int64 = 64 << 20

type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam describes one request.
//
// Body may be nil, an io.Reader, a []byte, or any JSON-marshalable value.
// Response may be nil, a *[]byte that receives the raw body, or a JSON
// decode target.
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	Timeout time.Duration
}
