package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "github.com/arcgis-mcp/server/pkg/logger"
)

// Config describes the ArcGIS endpoints and the optional portal credentials,
// bound from ARCGIS_* env vars. Credentials are never defaulted in code; when
// absent, portal queries run anonymously.
type Config struct {
	OrgID          string `split_words:"true" default:"V6ZHFr6zdgNZuVG0"`
	ServicesURL    string `split_words:"true" default:"https://services.arcgis.com"`
	PortalURL      string `split_words:"true" default:"https://www.arcgis.com"`
	Username       string `split_words:"true"`
	Password       string `split_words:"true"`
	RequestTimeout int    `split_words:"true" default:"15"`
}

// Client is a thin REST client over the ArcGIS feature-service and portal
// JSON APIs. Every call is bounded by the configured request timeout and
// respects context cancellation.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
		},
	}
}

// FeatureServerURL builds the feature-service endpoint for a service name.
// The original deployment assumes the service is named after the layer.
func (c *Client) FeatureServerURL(name string) string {
	return fmt.Sprintf("%s/%s/ArcGIS/rest/services/%s/FeatureServer",
		strings.TrimSuffix(c.cfg.ServicesURL, "/"), c.cfg.OrgID, url.PathEscape(name))
}

func (c *Client) portalRestURL(path string) string {
	return strings.TrimSuffix(c.cfg.PortalURL, "/") + "/sharing/rest" + path
}

// apiError is the error payload ArcGIS embeds in HTTP 200 responses.
type apiError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// getJSON issues a GET with f=json appended, decodes the body into out and
// surfaces both transport-level and embedded ArcGIS errors.
func (c *Client) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	body, err := c.get(ctx, rawURL, params)
	if err != nil {
		return err
	}

	var embedded apiError
	if err := json.Unmarshal(body, &embedded); err == nil && embedded.Error != nil {
		return fmt.Errorf("arcgis error %d: %s", embedded.Error.Code, embedded.Error.Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", rawURL, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("f", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", rawURL, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", rawURL, err)
	}
	return body, nil
}

// generateToken exchanges the configured portal credentials for a short-lived
// token. Callers must only invoke it when credentials are configured.
func (c *Client) generateToken(ctx context.Context) (string, error) {
	endpoint := c.portalRestURL("/generateToken")

	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)
	form.Set("referer", c.cfg.PortalURL)
	form.Set("f", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	var tr struct {
		Token string `json:"token"`
		apiError
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.Error != nil {
		return "", fmt.Errorf("generate token: %s", tr.Error.Message)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("generate token: empty token in response")
	}

	logx.Debug().Str("portal", c.cfg.PortalURL).Msg("Portal token acquired")
	return tr.Token, nil
}

// hasCredentials reports whether portal credentials were configured.
func (c *Client) hasCredentials() bool {
	return c.cfg.Username != "" && c.cfg.Password != ""
}
