// Package paypal implements the PayPal checkout order client.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/makena/hesabu/core"
	"github.com/makena/hesabu/core/payment"
)

const (
	oauthPath  = "/v1/oauth2/token"
	ordersPath = "/v2/checkout/orders"
)

type Client struct {
	conf        core.PaypalConfig
	frontendURL string
	client      *http.Client
}

var _ payment.PaypalClient = (*Client)(nil)

func NewClient(conf core.PaypalConfig, frontendURL string) *Client {
	return &Client{
		conf:        conf,
		frontendURL: frontendURL,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateOrder creates a CAPTURE-intent order tagged with reference and
// returns the approval redirect link from the provider's link set.
func (c *Client) CreateOrder(ctx context.Context, amount float64, currency, reference string) (payment.OrderResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return payment.OrderResult{}, errors.Wrap(err, "obtaining access token")
	}

	body, err := json.Marshal(map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": reference,
			"amount": map[string]string{
				"currency_code": currency,
				"value":         fmt.Sprintf("%.2f", amount),
			},
			"description": "CPA Course Payment",
		}},
		"application_context": map[string]string{
			"return_url": c.frontendURL + "/payment/success",
			"cancel_url": c.frontendURL + "/payment/cancel",
		},
	})
	if err != nil {
		return payment.OrderResult{}, errors.Wrap(err, "encoding order")
	}

	var res orderResponse
	if err = c.post(ctx, ordersPath, token, bytes.NewReader(body), &res); err != nil {
		return payment.OrderResult{}, errors.Wrap(err, "creating order")
	}

	result := payment.OrderResult{OrderID: res.ID}
	for _, link := range res.Links {
		if link.Rel == "approve" {
			result.ApproveURL = link.Href
			break
		}
	}
	return result, nil
}

// CaptureOrder captures an approved order.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (payment.CaptureResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return payment.CaptureResult{}, errors.Wrap(err, "obtaining access token")
	}

	var res captureResponse
	path := fmt.Sprintf("%s/%s/capture", ordersPath, orderID)
	if err = c.post(ctx, path, token, strings.NewReader("{}"), &res); err != nil {
		return payment.CaptureResult{}, errors.Wrap(err, "capturing order")
	}

	return payment.CaptureResult{
		Status:  res.Status,
		PayerID: res.Payer.PayerID,
	}, nil
}

func (c *Client) post(ctx context.Context, path, token string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.BaseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("provider response: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// accessToken performs the client-credential exchange. Tokens are not cached
// across calls.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.conf.BaseURL+oauthPath,
		strings.NewReader("grant_type=client_credentials"),
	)
	if err != nil {
		return "", errors.Wrap(err, "building request")
	}
	req.SetBasicAuth(c.conf.ClientID, c.conf.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("token endpoint: status %d", resp.StatusCode)
	}

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", errors.Wrap(err, "decoding token response")
	}
	if res.AccessToken == "" {
		return "", errors.New("token endpoint: empty access token")
	}
	return res.AccessToken, nil
}

type (
	orderResponse struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Links  []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}

	captureResponse struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Payer  struct {
			PayerID string `json:"payer_id"`
		} `json:"payer"`
	}
)
