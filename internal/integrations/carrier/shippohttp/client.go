package shippohttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/ShipNotify/internal/integrations/carrier"
	"github.com/pkg/errors"
)

const defaultBaseURL = "https://api.goshippo.com"

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) GetTracking(ctx context.Context, carrierCode, trackingNumber string) (carrier.TrackingResult, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return carrier.TrackingResult{}, errors.Wrap(err, "parse base url")
	}
	// сегменты экранируем сами: "/" внутри трек-номера не должен делить путь
	u = u.JoinPath("tracks", url.PathEscape(strings.ToLower(carrierCode)), url.PathEscape(trackingNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return carrier.TrackingResult{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "ShippoToken "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return carrier.TrackingResult{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return carrier.TrackingResult{}, errors.New("shippo rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return carrier.TrackingResult{}, errors.Errorf("shippo http %d", resp.StatusCode)
	}

	var tr Track
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return carrier.TrackingResult{}, errors.Wrap(err, "decode")
	}
	if tr.TrackingNumber == "" {
		tr.TrackingNumber = trackingNumber
	}
	if tr.Carrier == "" {
		tr.Carrier = carrierCode
	}
	return tr.ToResult(time.Now().UTC()), nil
}
