package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/config"
	"github.com/jafarshop/shopsync/pkg/errors"
)

// PageSize is the largest page the products endpoint returns.
const PageSize = 250

type Client struct {
	apiKey     string
	apiSecret  string
	apiVersion string
	baseURL    string // empty means https://<shop>
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Shopify Admin API client shared by every installed shop
func NewClient(cfg config.ShopifyConfig, logger *zap.Logger) *Client {
	return &Client{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		apiVersion: cfg.APIVersion,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// WithBaseURL points the client at a fixed host, e.g. an httptest server.
func (c *Client) WithBaseURL(baseURL string) *Client {
	cp := *c
	cp.baseURL = strings.TrimSuffix(baseURL, "/")
	return &cp
}

func (c *Client) shopURL(shop string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return "https://" + NormalizeShopDomain(shop)
}

// ProductQuery selects one page of products.json
type ProductQuery struct {
	Limit        int
	SinceID      string
	UpdatedAtMin string
}

func (q ProductQuery) values() url.Values {
	v := url.Values{}
	limit := q.Limit
	if limit <= 0 || limit > PageSize {
		limit = PageSize
	}
	v.Set("limit", strconv.Itoa(limit))
	if q.SinceID != "" {
		v.Set("since_id", q.SinceID)
	}
	if q.UpdatedAtMin != "" {
		v.Set("updated_at_min", q.UpdatedAtMin)
	}
	return v
}

// ListProducts fetches one page of products ordered by id.
func (c *Client) ListProducts(ctx context.Context, shop, token string, q ProductQuery) ([]ProductPayload, error) {
	endpoint := fmt.Sprintf("%s/admin/api/%s/products.json?%s", c.shopURL(shop), c.apiVersion, q.values().Encode())

	body, err := c.do(ctx, http.MethodGet, endpoint, token, nil)
	if err != nil {
		return nil, err
	}

	var resp productsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal products: %w", err)
	}
	return resp.Products, nil
}

// GraphQLRequest represents a GraphQL request
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GraphQLResponse represents a GraphQL response
type GraphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// GraphQLError represents a GraphQL error
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Execute executes a GraphQL query/mutation
func (c *Client) Execute(ctx context.Context, shop, token, query string, variables map[string]any) (*GraphQLResponse, error) {
	endpoint := fmt.Sprintf("%s/admin/api/%s/graphql.json", c.shopURL(shop), c.apiVersion)

	jsonData, err := json.Marshal(GraphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, endpoint, token, jsonData)
	if err != nil {
		return nil, err
	}

	var graphQLResp GraphQLResponse
	if err := json.Unmarshal(body, &graphQLResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}

	if len(graphQLResp.Errors) > 0 {
		errorMessages := make([]string, len(graphQLResp.Errors))
		for i, err := range graphQLResp.Errors {
			errorMessages[i] = err.Message
		}
		return nil, fmt.Errorf("graphQL errors: %s", strings.Join(errorMessages, "; "))
	}

	return &graphQLResp, nil
}

// EnsureWebhook subscribes callbackURL to topic and returns the subscription id.
func (c *Client) EnsureWebhook(ctx context.Context, shop, token, topic, callbackURL string) (string, error) {
	resp, err := c.Execute(ctx, shop, token, WebhookSubscriptionCreateMutation, map[string]any{
		"topic":       topic,
		"callbackUrl": callbackURL,
	})
	if err != nil {
		return "", err
	}

	var data struct {
		Create struct {
			WebhookSubscription struct {
				ID string `json:"id"`
			} `json:"webhookSubscription"`
			UserErrors []struct {
				Message string `json:"message"`
			} `json:"userErrors"`
		} `json:"webhookSubscriptionCreate"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(data.Create.UserErrors) > 0 {
		return "", fmt.Errorf("userError: %s", data.Create.UserErrors[0].Message)
	}
	if data.Create.WebhookSubscription.ID == "" {
		return "", fmt.Errorf("no webhook id returned")
	}
	return data.Create.WebhookSubscription.ID, nil
}

// AuthorizeURL is where a merchant approves the requested scopes.
func (c *Client) AuthorizeURL(shop, scopes, redirectURI, state string) string {
	q := url.Values{}
	q.Set("client_id", c.apiKey)
	q.Set("scope", scopes)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	return fmt.Sprintf("%s/admin/oauth/authorize?%s", c.shopURL(shop), q.Encode())
}

// TokenGrant is the answer to an OAuth code exchange
type TokenGrant struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

// ExchangeCode trades an OAuth authorization code for an offline access token.
func (c *Client) ExchangeCode(ctx context.Context, shop, code string) (*TokenGrant, error) {
	b, err := json.Marshal(map[string]string{
		"client_id":     c.apiKey,
		"client_secret": c.apiSecret,
		"code":          code,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, c.shopURL(shop)+"/admin/oauth/access_token", "", b)
	if err != nil {
		return nil, err
	}

	var grant TokenGrant
	if err := json.Unmarshal(raw, &grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token grant: %w", err)
	}
	if grant.AccessToken == "" {
		return nil, fmt.Errorf("no access token returned")
	}
	return &grant, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("X-Shopify-Access-Token", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Shopify API returned an error",
			zap.String("method", method),
			zap.String("url", req.URL.Path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &errors.ErrUpstream{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}
