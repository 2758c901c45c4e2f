// Package zabbix is a small JSON-RPC client for the Zabbix API covering the
// calls the dashboard needs: problems, triggers, hosts, host groups, event
// acknowledgement and user authentication.
package zabbix

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zentinel/zentinel/internal/cache"
	"golang.org/x/time/rate"
)

// Cache TTL constants
const (
	LookupCacheTTL   = 60 * time.Second // trigger/host/group lookups
	SessionTTL       = 30 * time.Minute // user.login session reuse
	CacheCleanupTick = time.Minute
)

// Config holds Zabbix connection configuration
type Config struct {
	URL       string
	Token     string
	Username  string
	Password  string
	VerifySSL bool
	Timeout   time.Duration
	ProxyURL  string

	// LegacyAuth sends the token in the request body "auth" field instead of
	// the Authorization header. Needed for Zabbix older than 6.4.
	LegacyAuth bool

	// RateLimit is the maximum requests per second, 0 disables limiting
	RateLimit float64
	Burst     int
}

// Request represents a Zabbix JSON-RPC request
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	Auth    string      `json:"auth,omitempty"`
	ID      uint64      `json:"id"`
}

// Response represents a Zabbix JSON-RPC response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

// APIError represents an error returned by the Zabbix API
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Zabbix API error: %s (code: %d, data: %s)", e.Message, e.Code, e.Data)
}

// IsInvalidParam reports whether err is an "invalid params" API error that
// mentions the given parameter name.
func IsInvalidParam(err error, param string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == -32602 && strings.Contains(apiErr.Data, param)
}

// isSessionExpired matches the errors Zabbix returns for a stale session id
func isSessionExpired(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	data := strings.ToLower(apiErr.Data)
	return strings.Contains(data, "session terminated") || strings.Contains(data, "not authorized")
}

// Client talks to a single Zabbix frontend
type Client struct {
	logger     *log.Logger
	config     Config
	apiURL     string
	httpClient *http.Client
	requestID  uint64
	limiter    *rate.Limiter
	lookups    *cache.Cache[json.RawMessage]

	sessionMu      sync.RWMutex
	sessionToken   string
	sessionExpires time.Time
}

// NewClient creates a client for the given configuration
func NewClient(config Config, logger *log.Logger) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("Zabbix URL not configured")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	// MUST explicitly set Proxy so HTTP_PROXY env vars are not picked up
	transport := &http.Transport{Proxy: nil}
	if config.ProxyURL != "" {
		proxyURL, err := url.Parse(config.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", config.ProxyURL, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if !config.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	c := &Client{
		logger: logger,
		config: config,
		apiURL: apiEndpoint(config.URL),
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		lookups: cache.New[json.RawMessage](LookupCacheTTL, CacheCleanupTick),
	}

	if config.RateLimit > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return c, nil
}

// apiEndpoint makes sure the URL ends with /api_jsonrpc.php
func apiEndpoint(base string) string {
	if strings.HasSuffix(base, "/api_jsonrpc.php") {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/api_jsonrpc.php"
}

// FrontendURL returns the Zabbix frontend base URL (without api_jsonrpc.php)
func (c *Client) FrontendURL() string {
	return strings.TrimSuffix(c.apiURL, "/api_jsonrpc.php")
}

// Close stops background cache cleanup
func (c *Client) Close() {
	c.lookups.Stop()
}

// ClearCache drops the cached lookups of the given methods. Without
// methods every lookup and the login session are dropped.
func (c *Client) ClearCache(methods ...string) {
	if len(methods) > 0 {
		for _, method := range methods {
			c.lookups.DeleteByPrefix(method + ":")
		}
		return
	}

	c.lookups.Clear()

	c.sessionMu.Lock()
	c.sessionToken = ""
	c.sessionMu.Unlock()
}

// call performs one JSON-RPC round trip with rate limiting
func (c *Client) call(ctx context.Context, method string, params interface{}, auth string) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
		}
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      atomic.AddUint64(&c.requestID, 1),
	}
	if c.config.LegacyAuth {
		req.Auth = auth
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json-rpc")
	if auth != "" && !c.config.LegacyAuth {
		httpReq.Header.Set("Authorization", "Bearer "+auth)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// auth returns the API token, or a cached user.login session
func (c *Client) auth(ctx context.Context) (string, error) {
	if c.config.Token != "" {
		return c.config.Token, nil
	}
	if c.config.Username == "" || c.config.Password == "" {
		return "", errors.New("no authentication method configured")
	}

	c.sessionMu.RLock()
	token, expires := c.sessionToken, c.sessionExpires
	c.sessionMu.RUnlock()
	if token != "" && time.Now().Before(expires) {
		return token, nil
	}

	token, err := c.Login(ctx, c.config.Username, c.config.Password)
	if err != nil {
		return "", err
	}

	c.sessionMu.Lock()
	c.sessionToken = token
	c.sessionExpires = time.Now().Add(SessionTTL)
	c.sessionMu.Unlock()
	c.logger.Printf("Zabbix session cached for %s (TTL: %v)", c.config.Username, SessionTTL)

	return token, nil
}

// request performs an authenticated call. A stale login session is dropped
// and the call retried once.
func (c *Client) request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	auth, err := c.auth(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.call(ctx, method, params, auth)
	if err != nil && c.config.Token == "" && isSessionExpired(err) {
		c.logger.Printf("Zabbix session expired, re-authenticating")
		c.sessionMu.Lock()
		c.sessionToken = ""
		c.sessionMu.Unlock()

		if auth, err = c.auth(ctx); err != nil {
			return nil, err
		}
		result, err = c.call(ctx, method, params, auth)
	}
	return result, err
}

// cachedRequest serves read-only lookups from the lookup cache
func (c *Client) cachedRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	key := lookupCacheKey(method, params)
	if cached, ok := c.lookups.Get(key); ok {
		return cached, nil
	}

	result, err := c.request(ctx, method, params)
	if err != nil {
		return nil, err
	}

	c.lookups.Set(key, result)
	return result, nil
}

// lookupCacheKey hashes the method params into a cache key
func lookupCacheKey(method string, params interface{}) string {
	paramsJSON, _ := json.Marshal(params)
	hash := sha256.Sum256(paramsJSON)
	return method + ":" + hex.EncodeToString(hash[:8])
}
