package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/watsonkit/watsonkit/config"
)

// Authenticator adds credentials to an outgoing request.
type Authenticator interface {
	Authenticate(ctx context.Context, req *http.Request) error
}

// BasicAuth authenticates with a service username and password.
type BasicAuth struct {
	Username string
	Password string
}

func (a BasicAuth) Authenticate(_ context.Context, req *http.Request) error {
	req.SetBasicAuth(a.Username, a.Password)
	return nil
}

// APIKeyAuth sends the key as basic auth for the user "apikey".
type APIKeyAuth struct {
	Key string
}

func (a APIKeyAuth) Authenticate(_ context.Context, req *http.Request) error {
	req.SetBasicAuth("apikey", a.Key)
	return nil
}

// IAMAuth exchanges an API key for a bearer token and reuses it until 80% of
// its lifetime has passed.
type IAMAuth struct {
	apiKey   string
	tokenURL string
	client   *http.Client
	now      func() time.Time

	mu        sync.Mutex
	token     string
	refreshAt time.Time
}

// NewIAMAuth creates an IAMAuth. A nil client uses http.DefaultClient.
func NewIAMAuth(apiKey, tokenURL string, client *http.Client) *IAMAuth {
	if client == nil {
		client = http.DefaultClient
	}
	if tokenURL == "" {
		tokenURL = config.DefaultIAMURL
	}
	return &IAMAuth{apiKey: apiKey, tokenURL: tokenURL, client: client, now: time.Now}
}

type iamToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token returns a valid access token, fetching a new one when needed.
func (a *IAMAuth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.now().Before(a.refreshAt) {
		return a.token, nil
	}

	form := url.Values{
		"grant_type": {"urn:ibm:params:oauth:grant-type:apikey"},
		"apikey":     {a.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("iam: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("iam: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("iam: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", parseServiceError("iam", "token", resp.StatusCode, body)
	}

	var tok iamToken
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("iam: decode response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("iam: response has no access_token")
	}

	lifetime := time.Duration(tok.ExpiresIn) * time.Second
	a.token = tok.AccessToken
	a.refreshAt = a.now().Add(lifetime * 8 / 10)
	return a.token, nil
}

func (a *IAMAuth) Authenticate(ctx context.Context, req *http.Request) error {
	token, err := a.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// AuthFromCredentials picks the authenticator for creds: IAM when an API key
// and token URL are present, API-key basic auth for a key alone, and
// username/password basic auth otherwise. Returns nil when creds carry no
// secret.
func AuthFromCredentials(creds config.ServiceCredentials, iamURL string, client *http.Client) Authenticator {
	switch {
	case creds.APIKey != "" && iamURL != "":
		return NewIAMAuth(creds.APIKey, iamURL, client)
	case creds.APIKey != "":
		return APIKeyAuth{Key: creds.APIKey}
	case creds.Username != "" && creds.Password != "":
		return BasicAuth{Username: creds.Username, Password: creds.Password}
	default:
		return nil
	}
}

var (
	_ Authenticator = BasicAuth{}
	_ Authenticator = APIKeyAuth{}
	_ Authenticator = (*IAMAuth)(nil)
)
