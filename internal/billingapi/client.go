package billingapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Client talks to the remote billing platform.  Every request, regardless of
// the resource it targets, funnels through the do method and is therefore
// retried under the same policy - resources never register themselves for
// retry handling individually.
type Client struct {
	baseURL    string
	secretKey  string
	apiVersion string
	httpClient *http.Client
	policy     RetryPolicy
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BillingApiBaseUrl, "/"),
		secretKey:  cfg.BillingApiSecretKey,
		apiVersion: cfg.BillingApiVersion,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy: RetryPolicy{
			MaxRetries:   cfg.RetryMaxRetries,
			InitialDelay: cfg.RetryInitialDelay,
			MaxDelay:     cfg.RetryMaxDelay,
			JitterBound:  cfg.RetryJitterBound,
		},
	}
}

// ListParams narrows a paginated list call.  StartingAfter is the remote
// platform's own pagination cursor (the id of the last object of the previous
// page).
type ListParams struct {
	Limit         int
	StartingAfter string
	Filters       url.Values
}

// ListPage is one page of a paginated list response.
type ListPage struct {
	Object  string            `json:"object"`
	Data    []json.RawMessage `json:"data"`
	HasMore bool              `json:"has_more"`
}

// LastID returns the pagination cursor for the page after this one.
func (p *ListPage) LastID() string {
	if len(p.Data) == 0 {
		return ""
	}

	var tail struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(p.Data[len(p.Data)-1], &tail); err != nil {
		return ""
	}
	return tail.ID
}

type WebhookEndpoint struct {
	ID            string   `json:"id"`
	URL           string   `json:"url"`
	EnabledEvents []string `json:"enabled_events"`
	Status        string   `json:"status"`
	Secret        string   `json:"secret,omitempty"`
}

// List fetches one page of objects from a list endpoint, e.g. "/v1/customers".
func (c *Client) List(ctx context.Context, path string, params ListParams) (*ListPage, error) {
	query := url.Values{}
	for key, values := range params.Filters {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.StartingAfter != "" {
		query.Set("starting_after", params.StartingAfter)
	}

	var page ListPage
	if err := c.do(ctx, http.MethodGet, path, query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get fetches a single object, e.g. "/v1/customers/cus_123".
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) CreateWebhookEndpoint(ctx context.Context, callbackURL string, enabledEvents []string) (*WebhookEndpoint, error) {
	form := url.Values{}
	form.Set("url", callbackURL)
	for i, event := range enabledEvents {
		form.Set(fmt.Sprintf("enabled_events[%d]", i), event)
	}

	var endpoint WebhookEndpoint
	if err := c.do(ctx, http.MethodPost, "/v1/webhook_endpoints", nil, form, &endpoint); err != nil {
		return nil, err
	}
	return &endpoint, nil
}

func (c *Client) GetWebhookEndpoint(ctx context.Context, endpointID string) (*WebhookEndpoint, error) {
	var endpoint WebhookEndpoint
	if err := c.do(ctx, http.MethodGet, "/v1/webhook_endpoints/"+url.PathEscape(endpointID), nil, nil, &endpoint); err != nil {
		return nil, err
	}
	return &endpoint, nil
}

func (c *Client) DeleteWebhookEndpoint(ctx context.Context, endpointID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/webhook_endpoints/"+url.PathEscape(endpointID), nil, nil, nil)
}

// do executes one api call under the retry policy.  This is the single choke
// point every resource call passes through.
func (c *Client) do(ctx context.Context, method string, path string, query url.Values, form url.Values, out interface{}) error {

	log := logger.Log.WithFields(logrus.Fields{"method": method, "path": path})

	_, err := WithRetry(ctx, log, c.policy, method+" "+path, func(ctx context.Context) (struct{}, error) {
		callDurationTimer := prometheus.NewTimer(requestDuration)
		defer callDurationTimer.ObserveDuration()

		return struct{}{}, c.roundTrip(ctx, method, path, query, form, out)
	})

	return err
}

func (c *Client) roundTrip(ctx context.Context, method string, path string, query url.Values, form url.Values, out interface{}) error {

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return &APIError{Kind: ErrorKindInvalidRequest, Message: err.Error(), Err: err}
	}

	request.Header.Set("Authorization", "Bearer "+c.secretKey)
	if c.apiVersion != "" {
		request.Header.Set("Billing-Api-Version", c.apiVersion)
	}
	if form != nil {
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return &APIError{Kind: ErrorKindConnection, Message: err.Error(), Err: err}
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return &APIError{Kind: ErrorKindConnection, Message: err.Error(), Err: err}
	}

	if response.StatusCode >= 400 {
		return c.newAPIError(response, responseBody)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(responseBody, out); err != nil {
		return &APIError{Kind: ErrorKindInvalidRequest, Message: "unable to parse billing api response: " + err.Error(), Err: err}
	}

	return nil
}

func (c *Client) newAPIError(response *http.Response, body []byte) *APIError {

	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	json.Unmarshal(body, &envelope)

	message := envelope.Error.Message
	if message == "" {
		message = http.StatusText(response.StatusCode)
	}

	apiError := &APIError{
		Kind:       classifyStatus(response.StatusCode, envelope.Error.Type),
		StatusCode: response.StatusCode,
		Code:       envelope.Error.Code,
		Message:    message,
		RequestID:  response.Header.Get("Request-Id"),
	}

	if retryAfter := response.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
			apiError.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	return apiError
}
