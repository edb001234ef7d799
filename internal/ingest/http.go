package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"riskdesk/internal/model"
)

// Emitter is the slice of the event bus ingestors need.
type Emitter interface {
	Emit(eventType model.EventType, source string, payload map[string]interface{}) string
}

// pollerClient wraps one upstream API with a request rate cap and a circuit
// breaker, so a flapping upstream is backed off instead of hammered.
type pollerClient struct {
	http    *resty.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newPollerClient(name, baseURL string, timeout, minInterval time.Duration) *pollerClient {
	return &pollerClient{
		http:    resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// post sends body as JSON to path, decoding the JSON response into out.
func (c *pollerClient) post(ctx context.Context, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req := c.http.R().SetContext(ctx).SetBody(body)
		if out != nil {
			req.SetResult(out)
		}
		resp, err := req.Post(path)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("%s: status %d", path, resp.StatusCode())
		}
		return nil, nil
	})
	return err
}

// get fetches path with params, decoding the JSON body into out.
func (c *pollerClient) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req := c.http.R().SetContext(ctx)
		if params != nil {
			req.SetQueryParams(params)
		}
		if out != nil {
			req.SetResult(out)
		}
		resp, err := req.Get(path)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("%s: status %d", path, resp.StatusCode())
		}
		return nil, nil
	})
	return err
}
