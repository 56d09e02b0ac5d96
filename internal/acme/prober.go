package acme

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ProbeResult is the verdict of a reachability pre-flight. Any HTTP
// response at all, including a non-2xx one, proves the domain resolves and
// routes somewhere reachable for challenge purposes.
type ProbeResult struct {
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Prober verifies a candidate domain answers on port 80 before issuance is
// attempted, so CA rate-limit budget is not wasted on dead domains.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// NewProber creates a prober with a bounded timeout
func NewProber(timeout time.Duration) *Prober {
	return &Prober{
		client: &http.Client{
			Timeout: timeout,
			// The first response settles the verdict; a redirect to
			// HTTPS must not be followed into a TLS failure.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: timeout,
	}
}

// Probe issues a plain HTTP GET against the domain on port 80 and resolves
// to a reachable/unreachable verdict within the timeout.
func (p *Prober) Probe(ctx context.Context, domain string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/", domain), nil)
	if err != nil {
		return ProbeResult{Reachable: false, Error: fmt.Sprintf("invalid domain: %v", err)}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ProbeResult{Reachable: false, Error: classifyProbeError(err)}
	}
	defer resp.Body.Close()

	return ProbeResult{Reachable: true, StatusCode: resp.StatusCode}
}

// classifyProbeError distinguishes timeouts from connection failures.
func classifyProbeError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("dns resolution failed: %s", dnsErr.Name)
	}

	return fmt.Sprintf("connection failed: %v", err)
}
