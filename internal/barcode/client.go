// Package barcode looks up product names for unknown barcodes in the
// Open Food Facts catalog.
package barcode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://world.openfoodfacts.org"
	sourceName     = "openfoodfacts"
)

var (
	ErrEmptyBarcode = errors.New("barcode is empty")
	ErrRateLimited  = errors.New("barcode lookup rate limited")
)

type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("barcode api error: %s", e.Status)
	}
	return fmt.Sprintf("barcode api error: %s: %s", e.Status, e.Body)
}

// Result is what the catalog knows about a barcode.
type Result struct {
	Barcode string
	Found   bool
	Name    string
	Brand   string
	Source  string
}

type productResponse struct {
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Product struct {
		ProductName string `json:"product_name"`
		Brands      string `json:"brands"`
	} `json:"product"`
}

type Client struct {
	http   *resty.Client
	logger *logrus.Entry
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "kiosco-backend/1.0").
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode() == http.StatusTooManyRequests
		})

	return &Client{
		http:   httpClient,
		logger: logger.WithField("component", "barcode"),
	}
}

// Lookup fetches a barcode. A barcode the catalog does not know is not an
// error: it comes back with Found false.
func (c *Client) Lookup(ctx context.Context, code string) (Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Result{}, ErrEmptyBarcode
	}

	var body productResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		SetPathParam("code", code).
		Get("/api/v0/product/{code}.json")
	if err != nil {
		return Result{}, fmt.Errorf("barcode request: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return Result{Barcode: code, Source: sourceName}, nil
	}
	if resp.IsError() {
		return Result{}, apiErrorFromResponse(resp)
	}

	result := Result{Barcode: code, Source: sourceName}
	name := strings.TrimSpace(body.Product.ProductName)
	if body.Status == 1 && name != "" {
		result.Found = true
		result.Name = name
		result.Brand = firstBrand(body.Product.Brands)
	}
	c.logger.WithFields(logrus.Fields{
		"barcode": code,
		"found":   result.Found,
	}).Debug("barcode lookup")
	return result, nil
}

func firstBrand(brands string) string {
	first, _, _ := strings.Cut(brands, ",")
	return strings.TrimSpace(first)
}

func apiErrorFromResponse(resp *resty.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Body:       strings.TrimSpace(resp.String()),
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Error())
	}
	return apiErr
}
