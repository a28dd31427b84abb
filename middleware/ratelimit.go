package middleware

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/mnehpets/onerpc/endpoint"
)

// RateLimitProcessor rejects requests beyond a token-bucket budget shared by
// all clients of the endpoint. Rejected requests get 429 with Retry-After.
type RateLimitProcessor struct {
	limiter *rate.Limiter
}

// NewRateLimitProcessor allows rps requests per second with bursts of up to
// burst requests. A burst below 1 is raised to 1.
func NewRateLimitProcessor(rps float64, burst int) *RateLimitProcessor {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitProcessor{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Process implements endpoint.Processor.
func (p *RateLimitProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	res := p.limiter.Reserve()
	if !res.OK() {
		return endpoint.Error(http.StatusTooManyRequests, "rate limit exceeded", nil)
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
		return endpoint.Error(http.StatusTooManyRequests, "rate limit exceeded", nil)
	}
	return next(w, r)
}

// Allow reports whether one more event fits the budget now. WebSocket
// connections meter individual messages with it.
func (p *RateLimitProcessor) Allow() bool {
	return p.limiter.Allow()
}

var _ endpoint.Processor = (*RateLimitProcessor)(nil)
