package dns

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// maxIPResponse bounds how much of the IP source response is read.
const maxIPResponse = 256

// IPResolver looks up this machine's public address from an HTTP endpoint
// that answers with the bare address, such as the DigitalOcean metadata API.
type IPResolver struct {
	client *retryablehttp.Client
}

// NewIPResolver creates an IPResolver that retries failed lookups up to retries times.
func NewIPResolver(retries int, timeout time.Duration) *IPResolver {
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.Logger = slog.Default()
	client.HTTPClient.Timeout = timeout
	return &IPResolver{client: client}
}

// Lookup fetches source and parses the trimmed body as an IP address.
func (r *IPResolver) Lookup(ctx context.Context, source string) (net.IP, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid IP source %s: %w", source, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query IP source %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("IP source %s returned %s", source, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIPResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read IP source response: %w", err)
	}

	text := strings.TrimSpace(string(body))
	ip := net.ParseIP(text)
	if ip == nil {
		return nil, fmt.Errorf("IP source %s returned %q, which is not an IP address", source, text)
	}

	slog.Debug("Resolved public IP", "source", source, "ip", ip.String())
	return ip, nil
}
