// Package mpesa implements the M-Pesa Daraja STK push client.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/makena/hesabu/core"
	"github.com/makena/hesabu/core/payment"
)

const (
	oauthPath   = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath = "/mpesa/stkpush/v1/processrequest"
)

type Client struct {
	conf   core.MpesaConfig
	client *http.Client
}

var _ payment.MpesaClient = (*Client)(nil)

func NewClient(conf core.MpesaConfig) *Client {
	return &Client{
		conf:   conf,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// RequestSTKPush obtains a fresh provider access token and submits a
// CustomerPayBillOnline push request tagged with accountRef.
func (c *Client) RequestSTKPush(ctx context.Context, phoneNumber string, amount float64, accountRef string) (payment.STKPushResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return payment.STKPushResult{}, errors.Wrap(err, "obtaining access token")
	}

	timestamp := time.Now().UTC().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(c.conf.Shortcode + c.conf.Passkey + timestamp),
	)

	body, err := json.Marshal(stkPushRequest{
		BusinessShortCode: c.conf.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            fmt.Sprintf("%.0f", amount),
		PartyA:            phoneNumber,
		PartyB:            c.conf.Shortcode,
		PhoneNumber:       phoneNumber,
		CallBackURL:       c.conf.CallbackURL,
		AccountReference:  accountRef,
		TransactionDesc:   "CPA Course Payment",
	})
	if err != nil {
		return payment.STKPushResult{}, errors.Wrap(err, "encoding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.BaseURL+stkPushPath, bytes.NewReader(body))
	if err != nil {
		return payment.STKPushResult{}, errors.Wrap(err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return payment.STKPushResult{}, errors.Wrap(err, "submitting STK push")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return payment.STKPushResult{}, errors.Errorf("STK push rejected: status %d", resp.StatusCode)
	}

	var res stkPushResponse
	if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return payment.STKPushResult{}, errors.Wrap(err, "decoding STK push response")
	}
	if res.ResponseCode != "0" {
		return payment.STKPushResult{}, errors.Errorf("STK push rejected: %s (%s)", res.ResponseDescription, res.ResponseCode)
	}

	return payment.STKPushResult{
		CheckoutRequestID: res.CheckoutRequestID,
		CustomerMessage:   res.CustomerMessage,
	}, nil
}

// accessToken performs the client-credential exchange. Tokens are not cached
// across calls.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.conf.BaseURL+oauthPath, nil)
	if err != nil {
		return "", errors.Wrap(err, "building request")
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.conf.ConsumerKey + ":" + c.conf.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+auth)

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
	stkPushRequest struct {
		BusinessShortCode string `json:"BusinessShortCode"`
		Password          string `json:"Password"`
		Timestamp         string `json:"Timestamp"`
		TransactionType   string `json:"TransactionType"`
		Amount            string `json:"Amount"`
		PartyA            string `json:"PartyA"`
		PartyB            string `json:"PartyB"`
		PhoneNumber       string `json:"PhoneNumber"`
		CallBackURL       string `json:"CallBackURL"`
		AccountReference  string `json:"AccountReference"`
		TransactionDesc   string `json:"TransactionDesc"`
	}

	stkPushResponse struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
	}
)
