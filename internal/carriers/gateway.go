package carriers

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Gateway is the outbound client for the shipping broker's XML-over-HTTP
// API (rate quotes, label purchase, status polling, document download).
//
// The broker accepts two independent credential pairs: an API key/secret
// pair and a web login/password pair. Either may be valid for a given
// account and environment, so every call walks the available pairs in a
// per-operation preferred order and fails over to the next pair only on an
// authorization rejection (401/403). Any other failure stops the walk.
type Gateway struct {
	baseURL   string
	accessKey string
	secretKey string
	login     string
	password  string
	devMode   bool
	client    *http.Client
}

// Config contains configuration for the carrier gateway
type Config struct {
	BaseURL   string
	AccessKey string
	SecretKey string
	Login     string
	Password  string
	DevMode   bool
}

// Per-operation timeouts bound worst-case latency on the broker side.
const (
	quotesTimeout   = 12 * time.Second
	orderTimeout    = 25 * time.Second
	statusTimeout   = 15 * time.Second
	documentTimeout = 20 * time.Second
)

// NewGateway creates a new carrier gateway client
func NewGateway(cfg Config) *Gateway {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.envoimoinscher.com/api"
	}

	return &Gateway{
		baseURL:   baseURL,
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		login:     cfg.Login,
		password:  cfg.Password,
		devMode:   cfg.DevMode,
		client:    &http.Client{},
	}
}

// credentialPair is one HTTP Basic authentication identity.
type credentialPair struct {
	name     string
	user     string
	password string
}

func (g *Gateway) keyPair() (credentialPair, bool) {
	if g.accessKey == "" || g.secretKey == "" {
		return credentialPair{}, false
	}
	return credentialPair{name: "key", user: g.accessKey, password: g.secretKey}, true
}

func (g *Gateway) loginPair() (credentialPair, bool) {
	if g.login == "" || g.password == "" {
		return credentialPair{}, false
	}
	return credentialPair{name: "login", user: g.login, password: g.password}, true
}

// pairsPreferKey returns the available credential pairs, API key first.
func (g *Gateway) pairsPreferKey() []credentialPair {
	var pairs []credentialPair
	if pair, ok := g.keyPair(); ok {
		pairs = append(pairs, pair)
	}
	if pair, ok := g.loginPair(); ok {
		pairs = append(pairs, pair)
	}
	return pairs
}

// pairsPreferLogin returns the available credential pairs, web login first.
func (g *Gateway) pairsPreferLogin() []credentialPair {
	var pairs []credentialPair
	if pair, ok := g.loginPair(); ok {
		pairs = append(pairs, pair)
	}
	if pair, ok := g.keyPair(); ok {
		pairs = append(pairs, pair)
	}
	return pairs
}

// Enabled reports whether at least one complete credential pair is
// configured.
func (g *Gateway) Enabled() bool {
	return len(g.pairsPreferKey()) > 0
}

// apiResponse is the raw outcome of one HTTP exchange with the broker.
type apiResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (r *apiResponse) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// requestBuilder produces a fresh request per attempt; request bodies are
// not reusable across retries.
type requestBuilder func() (*http.Request, error)

// doWithFailover walks the credential pairs in order, retrying only on
// authorization rejections. The first non-401/403 response (success or
// failure) ends the walk.
func (g *Gateway) doWithFailover(pairs []credentialPair, timeout time.Duration, build requestBuilder) (*apiResponse, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no carrier credentials configured")
	}

	client := &http.Client{Timeout: timeout}

	var last *apiResponse
	for _, pair := range pairs {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to build carrier request: %w", err)
		}
		req.SetBasicAuth(pair.user, pair.password)

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("carrier request failed: %w", err)
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read carrier response: %w", readErr)
		}

		last = &apiResponse{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}

		// Only authorization rejections move to the next pair.
		if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
			return last, nil
		}
	}

	return last, nil
}

// endpoint builds an absolute API URL with optional query values.
func (g *Gateway) endpoint(path string, query url.Values) string {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
