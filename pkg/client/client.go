package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client talks to the procsched HTTP control API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool   // Enable TLS
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

// DefaultConfig targets a controller started with --api-listen=:8080.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates an API client with optional TLS.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	// Setup HTTP transport with TLS configuration
	transport := &http.Transport{}

	// Configure TLS if needed
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the controller API is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/mode", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Controller unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	isReachable := resp.StatusCode == http.StatusOK
	c.logger.Debug("Controller reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// Workers lists the process table; verbose adds the OS status.
func (c *Client) Workers(ctx context.Context, verbose bool) ([]Worker, error) {
	path := "/workers"
	if verbose {
		path += "?verbose=1"
	}
	var out []Worker
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create launches n workers. A partially successful batch is not an error.
func (c *Client) Create(ctx context.Context, n int) (CreateResult, error) {
	c.logger.Debug("Creating workers", "count", n)
	var out CreateResult
	err := c.doRequest(ctx, http.MethodPost, "/workers?count="+strconv.Itoa(n), nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return out, nil
	}
	return out, err
}

// Kill terminates worker id.
func (c *Client) Kill(ctx context.Context, id int) error {
	c.logger.Debug("Killing worker", "id", id)
	return c.doRequest(ctx, http.MethodDelete, "/workers/"+strconv.Itoa(id), nil, nil)
}

// Resume moves suspended worker id back to Ready.
func (c *Client) Resume(ctx context.Context, id int) error {
	return c.doRequest(ctx, http.MethodPost, "/workers/"+strconv.Itoa(id)+"/resume", nil, nil)
}

// ResumeAll resumes every suspended worker and returns the ids it resumed.
func (c *Client) ResumeAll(ctx context.Context) ([]int, error) {
	var out resumeAllResponse
	if err := c.doRequest(ctx, http.MethodPost, "/workers/resume", nil, &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

// Mode reports the active policy.
func (c *Client) Mode(ctx context.Context) (ModeInfo, error) {
	var out ModeInfo
	err := c.doRequest(ctx, http.MethodGet, "/mode", nil, &out)
	return out, err
}

// SetFCFS switches to First-Come-First-Served.
func (c *Client) SetFCFS(ctx context.Context) (ModeInfo, error) {
	var out ModeInfo
	err := c.doRequest(ctx, http.MethodPut, "/mode", modeRequest{Mode: "fcfs"}, &out)
	return out, err
}

// SetRoundRobin switches to Round-Robin with quantum q.
func (c *Client) SetRoundRobin(ctx context.Context, q time.Duration) (ModeInfo, error) {
	var out ModeInfo
	err := c.doRequest(ctx, http.MethodPut, "/mode", modeRequest{Mode: "rr", Quantum: q.String()}, &out)
	return out, err
}

// Interrupt suspends the running worker, if any.
func (c *Client) Interrupt(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/interrupt", nil, nil)
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	// Handle insecure mode (skip verification)
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	// Configure TLS settings
	if config.TLS != nil {
		// Skip verification if requested
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}

		// Set server name for verification
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}

		// Load CA certificate if provided
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}

		// Load client certificate if provided
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}

	tlsConfig.RootCAs = caCertPool
	return nil
}

// doRequest sends body as JSON (when non-nil) and decodes a 2xx response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp, out)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse turns a non-2xx response into *APIError. A create
// conflict still carries a result body, which is decoded into out.
func (c *Client) handleErrorResponse(resp *http.Response, out any) error {
	raw, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var errorResp ErrorResponse
	if err := json.Unmarshal(raw, &errorResp); err == nil && errorResp.Error != "" {
		apiErr.Message = errorResp.Error
	} else if out != nil {
		_ = json.Unmarshal(raw, out)
	}
	c.logger.Debug("API request failed", "error", apiErr.Message, "status", resp.StatusCode)
	return apiErr
}
