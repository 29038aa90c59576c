package fomo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregtusar/fomo-trader/pkg/models"
	"golang.org/x/time/rate"
)

// ErrMissingPrice is returned when a ticker payload carries no last_price.
var ErrMissingPrice = errors.New("ticker response has no last_price")

var ErrOrderRejected = errors.New("order rejected")

// Client is the market collaborator consumed by the trader.
type Client interface {
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
	GetPosition(ctx context.Context, symbol string) (*models.Position, error)
	PlaceMarketOrder(ctx context.Context, order *models.OrderRequest) (*models.Order, error)
}

// APIError is returned for any non-2xx response from the FOMO API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fomo api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is an APIError with a 404 status.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type ClientOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

type RESTClient struct {
	baseURL    string
	auth       Authenticator
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewRESTClient(baseURL string, auth Authenticator, opts ClientOptions) *RESTClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

type tickerResponse struct {
	LastPrice *float64 `json:"last_price"`
}

type positionResponse struct {
	Size              float64 `json:"size"`
	AverageEntryPrice float64 `json:"average_entry_price"`
}

type orderRequestBody struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	QuoteSize     float64 `json:"quote_size"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
}

type orderResponse struct {
	OrderID       string  `json:"order_id"`
	ClientOrderID string  `json:"client_order_id"`
	Status        string  `json:"status"`
	FilledSize    float64 `json:"filled_size"`
}

func (c *RESTClient) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	path := "/market/ticker?" + url.Values{"symbol": {symbol}}.Encode()

	var resp tickerResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return 0, err
	}
	if resp.LastPrice == nil {
		return 0, fmt.Errorf("%s: %w", symbol, ErrMissingPrice)
	}
	return *resp.LastPrice, nil
}

func (c *RESTClient) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	path := "/account/positions/" + url.PathEscape(symbol)

	var resp positionResponse
	err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &resp)
	if IsNotFound(err) {
		return &models.Position{Symbol: symbol}, nil
	}
	if err != nil {
		return nil, err
	}

	return &models.Position{
		Symbol:            symbol,
		Size:              resp.Size,
		AverageEntryPrice: resp.AverageEntryPrice,
	}, nil
}

// PlaceMarketOrder submits the order once. A non-empty ClientOrderID is also sent as the
// Idempotency-Key header so the server can drop a duplicate submitted by a caller retry.
func (c *RESTClient) PlaceMarketOrder(ctx context.Context, order *models.OrderRequest) (*models.Order, error) {
	orderType := order.Type
	if orderType == "" {
		orderType = models.OrderTypeMarket
	}

	body, err := json.Marshal(orderRequestBody{
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		Type:          string(orderType),
		QuoteSize:     order.QuoteSize,
		ClientOrderID: order.ClientOrderID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	headers := map[string]string{}
	if order.ClientOrderID != "" {
		headers["Idempotency-Key"] = order.ClientOrderID
	}

	var resp orderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/orders", body, headers, &resp); err != nil {
		return nil, err
	}

	status := models.OrderStatus(resp.Status)
	switch status {
	case "":
		status = models.OrderStatusNew
	case models.OrderStatusRejected:
		return nil, fmt.Errorf("%w: order %s for %s", ErrOrderRejected, resp.OrderID, order.Symbol)
	}

	clientOrderID := resp.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = order.ClientOrderID
	}

	return &models.Order{
		OrderID:       resp.OrderID,
		ClientOrderID: clientOrderID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Type:          orderType,
		QuoteSize:     order.QuoteSize,
		FilledSize:    resp.FilledSize,
		Status:        status,
		CreatedAt:     time.Now(),
	}, nil
}

func (c *RESTClient) doJSON(ctx context.Context, method, path string, body []byte, headers map[string]string, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *RESTClient) doRequest(ctx context.Context, method, path string, body []byte, headers map[string]string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if c.auth != nil {
		if err := c.auth.AddAuthHeaders(req, method, req.URL.Path, string(body)); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}
