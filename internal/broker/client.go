package broker

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"skipper/internal/config"
	"skipper/internal/logger"
	"skipper/internal/money"
)

// Client talks to the brokerage REST API. Every call has bounded retries
// with linear backoff; exhausting them is a hard failure for the caller.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	username   string
	password   string
	token      string
	maxRetries int
	backoff    time.Duration
}

// NewClient constructs a broker client from configuration.
func NewClient(cfg config.BrokerConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("broker.api_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 broker.api_url 失败: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true // #nosec G402
		}
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := time.Duration(cfg.RetryBackoffMillis) * time.Millisecond
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		username:   strings.TrimSpace(cfg.Username),
		password:   strings.TrimSpace(cfg.Password),
		token:      strings.TrimSpace(cfg.APIToken),
		maxRetries: retries,
		backoff:    backoff,
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) Name() string { return "http" }

// FetchSnapshot queries /account. Venue payload shapes drift between broker
// builds, so the parse goes through gjson rather than a rigid struct.
func (c *Client) FetchSnapshot(ctx context.Context) (*AccountSnapshot, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/account", nil)
	if err != nil {
		return nil, err
	}
	body := string(raw)
	snap := &AccountSnapshot{
		CashCents:           money.FromFloat(gjson.Get(body, "cash").Float()),
		PortfolioValueCents: money.FromFloat(gjson.Get(body, "portfolio_value").Float()),
		FetchedAt:           time.Now(),
	}
	positions := gjson.Get(body, "positions")
	if !positions.Exists() {
		positions = gjson.Get(body, "data.positions")
	}
	positions.ForEach(func(_, pos gjson.Result) bool {
		symbol := strings.ToUpper(strings.TrimSpace(pos.Get("symbol").String()))
		if symbol == "" {
			return true
		}
		snap.Positions = append(snap.Positions, VenuePosition{
			Symbol:           symbol,
			Quantity:         pos.Get("quantity").Int(),
			AvgPriceCents:    money.FromFloat(pos.Get("avg_price").Float()),
			MarketValueCents: money.FromFloat(pos.Get("market_value").Float()),
		})
		return true
	})
	return snap, nil
}

type submitPayload struct {
	IdempotencyKey string  `json:"idempotency_key"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Quantity       int64   `json:"quantity"`
	LimitPrice     float64 `json:"limit_price"`
}

// SubmitOrder posts /orders with the intent id as the idempotency key.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	payload := submitPayload{
		IdempotencyKey: req.IdempotencyKey,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Quantity:       req.Quantity,
		LimitPrice:     req.LimitPriceCents.Float64(),
	}
	raw, err := c.doRequest(ctx, http.MethodPost, "/orders", payload)
	if err != nil {
		return nil, err
	}
	body := string(raw)
	orderID := gjson.Get(body, "order_id").String()
	if orderID == "" {
		orderID = gjson.Get(body, "data.order_id").String()
	}
	if orderID == "" {
		return nil, fmt.Errorf("broker 未返回 order_id")
	}
	return &OrderAck{
		BrokerOrderID: orderID,
		Status:        parseStatus(gjson.Get(body, "status").String()),
	}, nil
}

// OrderStatus polls /orders/{id}.
func (c *Client) OrderStatus(ctx context.Context, brokerOrderID string) (*OrderState, error) {
	if strings.TrimSpace(brokerOrderID) == "" {
		return nil, fmt.Errorf("broker order id 必填")
	}
	raw, err := c.doRequest(ctx, http.MethodGet, "/orders/"+url.PathEscape(brokerOrderID), nil)
	if err != nil {
		return nil, err
	}
	body := string(raw)
	return &OrderState{
		Status:         parseStatus(gjson.Get(body, "status").String()),
		FilledQuantity: gjson.Get(body, "filled_quantity").Int(),
		FillPriceCents: money.FromFloat(gjson.Get(body, "fill_price").Float()),
		Reason:         gjson.Get(body, "reason").String(),
	}, nil
}

func parseStatus(s string) OrderStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "filled", "done":
		return StatusFilled
	case "rejected":
		return StatusRejected
	case "canceled", "cancelled":
		return StatusCanceled
	case "expired":
		return StatusExpired
	case "submitted", "accepted", "new", "open":
		return StatusSubmitted
	default:
		return StatusPending
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	endpoint, err := c.resolveEndpoint(path)
	if err != nil {
		return nil, err
	}
	var bodyBytes []byte
	if payload != nil {
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("序列化请求失败: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
		if err != nil {
			return nil, fmt.Errorf("构造请求失败: %w", err)
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		} else if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("调用 broker 失败: %w", err)
			logger.Warnf("broker: %s %s attempt %d/%d failed: %v", method, path, attempt+1, c.maxRetries, err)
			continue
		}
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("broker 返回错误(%s): %s", resp.Status, strings.TrimSpace(string(data)))
			continue
		}
		if resp.StatusCode >= 300 {
			// Client errors do not retry; the request will not get better.
			if len(data) == 0 {
				return nil, fmt.Errorf("broker 返回错误: %s", resp.Status)
			}
			return nil, fmt.Errorf("broker 返回错误(%s): %s", resp.Status, strings.TrimSpace(string(data)))
		}
		if readErr != nil {
			lastErr = fmt.Errorf("读取 broker 响应失败: %w", readErr)
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("broker 请求重试耗尽: %w", lastErr)
}

func (c *Client) resolveEndpoint(path string) (*url.URL, error) {
	if c.baseURL == nil {
		return nil, fmt.Errorf("broker API 地址未设置")
	}
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = "/"
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	joined := *c.baseURL
	joined.Path = strings.TrimRight(joined.Path, "/") + trimmed
	return &joined, nil
}
