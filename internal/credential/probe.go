package credential

import (
	"context"
	"io"
	"net/http"
	"strings"

	"main/internal/errors"
	"main/pkg/exception"
)

const maxProbeBody = 256

// IdentityProbe resolves the network identity the upstream service observes
// this process as.
type IdentityProbe interface {
	Detect(ctx context.Context) (string, error)
}

// IPProbe detects the egress address via a plain-text "what is my IP"
// endpoint.
type IPProbe struct {
	URL    string
	Client *http.Client
}

// NewIPProbe builds a probe against the given endpoint.
func NewIPProbe(url string, client *http.Client) *IPProbe {
	if client == nil {
		client = http.DefaultClient
	}
	return &IPProbe{URL: url, Client: client}
}

// Detect performs the probe request and returns the trimmed body.
func (p *IPProbe) Detect(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return "", errors.Wrap(err, "build probe request")
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", errors.Wrap(exception.ErrConnection, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", exception.NewHTTPError(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return "", errors.Wrap(err, "read probe body")
	}

	ip := strings.TrimSpace(string(body))
	if ip == "" {
		return "", exception.ErrMalformed
	}
	return ip, nil
}
