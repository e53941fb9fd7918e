package desktop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/srg/nearbyhal/pkg/hal"
)

// maxResponseBody caps how much of a response body is buffered.
const maxResponseBody = 16 << 20

// errServerStatus marks 5xx replies so they count against the breaker while
// still being returned to the caller.
var errServerStatus = errors.New("server error status")

// httpLoader sends web requests through a circuit breaker shared by every
// request of the factory.
type httpLoader struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*hal.WebResponse]
}

// newHTTPLoader trips the breaker after maxFailures consecutive failures;
// zero never trips it.
func newHTTPLoader(logger *logrus.Logger, timeout time.Duration, maxFailures uint32, openFor time.Duration) *httpLoader {
	return &httpLoader{
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*hal.WebResponse](gobreaker.Settings{
			Name:        "send-request",
			MaxRequests: 1,
			Timeout:     openFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return maxFailures > 0 && counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Circuit breaker state change")
			},
		}),
	}
}

func (l *httpLoader) send(ctx context.Context, req hal.WebRequest) (*hal.WebResponse, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("empty URL: %w", hal.ErrInvalidArgument)
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	resp, err := l.breaker.Execute(func() (*hal.WebResponse, error) {
		return l.do(ctx, method, req)
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("request to %s rejected, circuit open: %w", req.URL, err)
	}
	return resp, err
}

func (l *httpLoader) do(ctx context.Context, method string, req hal.WebRequest) (*hal.WebResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", hal.ErrInvalidArgument)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpResp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	resp := &hal.WebResponse{
		StatusCode: httpResp.StatusCode,
		StatusText: http.StatusText(httpResp.StatusCode),
		Headers:    make(map[string]string, len(httpResp.Header)),
		Body:       data,
	}
	for k := range httpResp.Header {
		resp.Headers[k] = httpResp.Header.Get(k)
	}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		return resp, errServerStatus
	}
	return resp, nil
}
