package pushclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Push struct {
	Topic    string
	Title    string
	Body     string
	Icon     string
	Link     string
	City     string
	Category string
}

type Client struct {
	Endpoint   string
	AdminToken string
	HTTP       *http.Client
}

func New(endpoint, adminToken string) *Client {
	return &Client{
		Endpoint:   endpoint,
		AdminToken: adminToken,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
}

// SendPush asks the spasi-push server to broadcast push.
func (c *Client) SendPush(ctx context.Context, push Push) error {
	endpointURL, err := url.Parse(c.Endpoint)
	if err != nil {
		return errors.Wrap(err, "Parsing push endpoint")
	}

	formData := url.Values{}
	formData.Set("topic", push.Topic)
	formData.Set("title", push.Title)
	formData.Set("body", push.Body)
	formData.Set("icon", push.Icon)
	formData.Set("link", push.Link)
	formData.Set("city", push.City)
	formData.Set("category", push.Category)

	endpointURL.Path = "/push"
	if endpointURL.Scheme == "" {
		endpointURL.Scheme = "https"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL.String(), strings.NewReader(formData.Encode()))
	if err != nil {
		return errors.Wrap(err, "Building push request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.AdminToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "Failed to read response body")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("Failed to send push: %s", string(respBody))
	}

	return nil
}
