package twiliohttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/ShipNotify/internal/integrations/sms"
	"github.com/pkg/errors"
)

const defaultBaseURL = "https://api.twilio.com"

type Client struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpc      *http.Client
}

func New(baseURL, accountSID, authToken, from string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type messageResp struct {
	SID       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
}

type errorResp struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) Send(ctx context.Context, msg sms.Message) (string, error) {
	if msg.To == "" {
		return "", errors.New("sms recipient is empty")
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.accountSID))
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", c.from)
	form.Set("Body", msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var er errorResp
		_ = json.NewDecoder(resp.Body).Decode(&er)
		return "", errors.Errorf("twilio http %d: code=%d %s", resp.StatusCode, er.Code, er.Message)
	}

	var mr messageResp
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return "", errors.Wrap(err, "decode")
	}
	if mr.ErrorCode != nil {
		return mr.SID, errors.Errorf("twilio message %s failed: code=%d", mr.SID, *mr.ErrorCode)
	}
	return mr.SID, nil
}
