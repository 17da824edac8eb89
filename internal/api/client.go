package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/rickgao/notifystream/internal/version"
	"go.uber.org/zap"
)

// Default REST paths.
const (
	DefaultRefreshPath = "/api/token/refresh/"
	DefaultHealthPath  = "/api/health/"
)

// Client provides access to the notification backend REST API.
type Client struct {
	baseURL     string
	refreshPath string
	healthPath  string
	userAgent   string
	httpClient  *http.Client
	logger      *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		refreshPath: DefaultRefreshPath,
		healthPath:  DefaultHealthPath,
		userAgent:   version.UserAgent(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("api")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPaths overrides the refresh and health paths. Empty values keep the defaults.
func WithPaths(refreshPath, healthPath string) ClientOption {
	return func(c *Client) {
		if refreshPath != "" {
			c.refreshPath = refreshPath
		}
		if healthPath != "" {
			c.healthPath = healthPath
		}
	}
}
