// REST API CLIENT FOR THE EXCHANGE ORDER/FILL ENDPOINTS
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradecore/src/model"
)

const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type wireFill struct {
	OrderID     string `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	ExecutedQty string `json:"executedQty"`
	AvgPrice    string `json:"avgPrice"`
	CumQuoteQty string `json:"cummulativeQuoteQty"`
	Fee         string `json:"commission"`
	FeeCurrency string `json:"commissionAsset"`
	Status      string `json:"status"`
	Time        int64  `json:"time"`
}

type wireOpenOrder struct {
	OrderID string `json:"orderId"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	Qty     string `json:"origQty"`
	Price   string `json:"price"`
	Time    int64  `json:"time"`
}

// RESTClient talks to the exchange's signed REST API. Retries are bounded and
// handled inside resty; once they are exhausted the error surfaces as
// model.ErrExchangeUnavailable so callers can classify it.
type RESTClient struct {
	apiKey    string
	apiSecret string
	http      *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 || code == 408 {
		return true
	}
	return false
}

func NewRESTClient(apiKey, apiSecret, baseURL string) *RESTClient {
	if baseURL == "" {
		baseURL = GetConfig().BaseURL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &RESTClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      httpClient,
	}
}

func signRequest(path, query, body string, expiry int64, secret string) string {
	base := path + query + fmt.Sprintf("%d", expiry) + body
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *RESTClient) doRequest(ctx context.Context, method, path, query string, body []byte) (*apiResponse, error) {
	expiry := time.Now().Add(1 * time.Minute).Unix()
	sig := signRequest(path, query, string(body), expiry, c.apiSecret)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.apiKey).
		SetHeader("x-request-expiry", fmt.Sprintf("%d", expiry)).
		SetHeader("x-request-signature", sig)

	if query != "" {
		req = req.SetQueryString(query)
	}
	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrExchangeUnavailable, err)
	}

	raw := resp.Body()

	if resp.StatusCode() != 200 {
		if isRetryableResp(resp, nil) {
			return nil, fmt.Errorf("%w: HTTP %d after retries", model.ErrExchangeUnavailable, resp.StatusCode())
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, err
	}
	if apiResp.Code != 0 {
		return nil, fmt.Errorf("%s", apiErrorMessage(apiResp.Code, apiResp.Msg))
	}

	return &apiResp, nil
}

func parseWireFill(w wireFill) (Fill, error) {
	qty, err := decimal.NewFromString(w.ExecutedQty)
	if err != nil {
		return Fill{}, fmt.Errorf("bad executedQty %q: %w", w.ExecutedQty, err)
	}
	price, err := decimal.NewFromString(w.AvgPrice)
	if err != nil {
		return Fill{}, fmt.Errorf("bad avgPrice %q: %w", w.AvgPrice, err)
	}

	cumQuote := decimal.Zero
	if w.CumQuoteQty != "" {
		if cumQuote, err = decimal.NewFromString(w.CumQuoteQty); err != nil {
			return Fill{}, fmt.Errorf("bad cummulativeQuoteQty %q: %w", w.CumQuoteQty, err)
		}
	}
	fee := decimal.Zero
	if w.Fee != "" {
		if fee, err = decimal.NewFromString(w.Fee); err != nil {
			return Fill{}, fmt.Errorf("bad commission %q: %w", w.Fee, err)
		}
	}

	return Fill{
		ExchangeOrderID:    w.OrderID,
		Symbol:             w.Symbol,
		Side:               w.Side,
		ExecutedQty:        qty,
		AvgPrice:           price,
		CumulativeQuoteQty: cumQuote,
		FeeAmount:          fee,
		FeeCurrency:        w.FeeCurrency,
		Status:             w.Status,
		Time:               time.Unix(0, w.Time*int64(time.Millisecond)).UTC(),
	}, nil
}

// FetchFills returns the account's fill history for the window, optionally
// restricted to one symbol.
func (c *RESTClient) FetchFills(ctx context.Context, symbol string, from, to time.Time) ([]Fill, error) {
	query := fmt.Sprintf("startTime=%d&endTime=%d", from.UnixMilli(), to.UnixMilli())
	if symbol != "" {
		query = "symbol=" + symbol + "&" + query
	}

	resp, err := c.doRequest(ctx, "GET", "/api/v1/fills", query, nil)
	if err != nil {
		return nil, err
	}

	var wires []wireFill
	if err := json.Unmarshal(resp.Data, &wires); err != nil {
		return nil, err
	}

	fills := make([]Fill, 0, len(wires))
	for _, w := range wires {
		fill, err := parseWireFill(w)
		if err != nil {
			logger.WithError(err).WithField("order_id", w.OrderID).Error("skipping unparseable fill")
			continue
		}
		fills = append(fills, fill)
	}
	return fills, nil
}

// PlaceOrder submits a market order and returns its fill.
func (c *RESTClient) PlaceOrder(ctx context.Context, symbol, side string, qty decimal.Decimal, clientOrderID string) (*Fill, error) {
	body := map[string]interface{}{
		"symbol":      symbol,
		"side":        side,
		"type":        "MARKET",
		"quantity":    qty.String(),
		"clientOrdId": clientOrderID,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, "POST", "/api/v1/order", "", b)
	if err != nil {
		return nil, err
	}

	var w wireFill
	if err := json.Unmarshal(resp.Data, &w); err != nil {
		return nil, err
	}

	fill, err := parseWireFill(w)
	if err != nil {
		return nil, err
	}
	return &fill, nil
}

// GetOpenOrders lists resting orders for a symbol (all symbols when empty).
func (c *RESTClient) GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	query := ""
	if symbol != "" {
		query = "symbol=" + symbol
	}

	resp, err := c.doRequest(ctx, "GET", "/api/v1/openOrders", query, nil)
	if err != nil {
		return nil, err
	}

	var wires []wireOpenOrder
	if err := json.Unmarshal(resp.Data, &wires); err != nil {
		return nil, err
	}

	orders := make([]OpenOrder, 0, len(wires))
	for _, w := range wires {
		qty, err := decimal.NewFromString(w.Qty)
		if err != nil {
			continue
		}
		price, err := decimal.NewFromString(w.Price)
		if err != nil {
			continue
		}
		orders = append(orders, OpenOrder{
			ExchangeOrderID: w.OrderID,
			Symbol:          w.Symbol,
			Side:            w.Side,
			Qty:             qty,
			Price:           price,
			CreatedAt:       time.Unix(0, w.Time*int64(time.Millisecond)).UTC(),
		})
	}
	return orders, nil
}
