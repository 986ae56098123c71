package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"
	"github.com/zfogg/daybook/internal/cli/credentials"
	"github.com/zfogg/daybook/internal/cli/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	apiPrefix = "/api/v1"
	userAgent = "Daybook-CLI/0.1.0"
)

var jsonAPI = json.ConfigCompatibleWithStandardLibrary

// ErrNotLoggedIn is returned when a command needs credentials and none are stored
var ErrNotLoggedIn = errors.New("not logged in, run `daybook login`")

// ErrSessionExpired is returned when the refresh token was rejected
var ErrSessionExpired = errors.New("session expired, run `daybook login` again")

// TokenStore persists credentials between runs
type TokenStore interface {
	Load() (*credentials.Credentials, error)
	Save(*credentials.Credentials) error
	Delete() error
}

// FileStore keeps credentials in the config directory
type FileStore struct{}

func (FileStore) Load() (*credentials.Credentials, error) { return credentials.Load() }
func (FileStore) Save(c *credentials.Credentials) error   { return credentials.Save(c) }
func (FileStore) Delete() error                           { return credentials.Delete() }

// APIError is an error envelope returned by the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Field      string
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Code, msg)
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Error   *envelopeError  `json:"error"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// Client talks to the daybook API on behalf of the stored account
type Client struct {
	http   *resty.Client
	tokens TokenStore
}

// New creates a client for baseURL
func New(baseURL string, timeout time.Duration, tokens TokenStore) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(jsonAPI.Marshal).
		SetJSONUnmarshaler(jsonAPI.Unmarshal)

	httpClient.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		logger.Debug("HTTP Request", "method", req.Method, "url", req.URL)
		return nil
	})
	httpClient.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Debug("HTTP Response", "status", resp.StatusCode(), "duration", resp.Time())
		return nil
	})

	return &Client{http: httpClient, tokens: tokens}
}

type call struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	auth   bool
}

// do sends c, refreshing the access token once on 401, and decodes data and meta
func (cl *Client) do(ctx context.Context, c call, data, meta interface{}) error {
	var creds *credentials.Credentials
	if c.auth {
		var err error
		if creds, err = cl.tokens.Load(); err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		if creds == nil || creds.AccessToken == "" {
			return ErrNotLoggedIn
		}
	}

	resp, err := cl.send(ctx, c, creds)
	if err != nil {
		return err
	}

	if resp.StatusCode() == http.StatusUnauthorized && creds != nil && creds.CanRefresh() {
		logger.Debug("Access token rejected, refreshing")
		creds, err = cl.refresh(ctx, creds)
		if err != nil {
			return err
		}
		if resp, err = cl.send(ctx, c, creds); err != nil {
			return err
		}
	}

	return decode(resp, data, meta)
}

func (cl *Client) send(ctx context.Context, c call, creds *credentials.Credentials) (*resty.Response, error) {
	req := cl.http.R().SetContext(ctx)
	if c.query != nil {
		req.SetQueryParamsFromValues(c.query)
	}
	if c.body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(c.body)
	}
	if creds != nil {
		req.SetAuthToken(creds.AccessToken)
	}
	resp, err := req.Execute(c.method, apiPrefix+c.path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.method, c.path, err)
	}
	return resp, nil
}

func decode(resp *resty.Response, data, meta interface{}) error {
	var env envelope
	if err := jsonAPI.Unmarshal(resp.Body(), &env); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode(),
			Code:       "BAD_RESPONSE",
			Message:    strings.TrimSpace(string(resp.Body())),
		}
	}

	if resp.IsError() || !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Code: "UNKNOWN", Message: resp.Status()}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Field = env.Error.Field
		}
		return apiErr
	}

	if data != nil && len(env.Data) > 0 {
		if err := jsonAPI.Unmarshal(env.Data, data); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if meta != nil && len(env.Meta) > 0 {
		if err := jsonAPI.Unmarshal(env.Meta, meta); err != nil {
			return fmt.Errorf("decode response meta: %w", err)
		}
	}
	return nil
}

// refresh rotates the stored tokens. A rejected refresh token signs the user out.
func (cl *Client) refresh(ctx context.Context, creds *credentials.Credentials) (*credentials.Credentials, error) {
	resp, err := cl.send(ctx, call{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   map[string]string{"refresh_token": creds.RefreshToken},
	}, nil)
	if err != nil {
		return nil, err
	}

	var result AuthResult
	if err := decode(resp, &result, nil); err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			_ = cl.tokens.Delete()
			return nil, ErrSessionExpired
		}
		return nil, err
	}

	updated := toCredentials(&result)
	if err := cl.tokens.Save(updated); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}
	logger.Debug("Access token refreshed")
	return updated, nil
}

func toCredentials(r *AuthResult) *credentials.Credentials {
	c := &credentials.Credentials{}
	if r.Tokens != nil {
		c.AccessToken = r.Tokens.AccessToken
		c.RefreshToken = r.Tokens.RefreshToken
		c.ExpiresAt = r.Tokens.ExpiresAt
		c.RefreshExpiresAt = r.Tokens.RefreshExpiresAt
	}
	if r.User != nil {
		c.UserID = r.User.ID
		c.Username = r.User.Username
		c.Email = r.User.Email
		c.Timezone = r.User.Timezone
	}
	return c
}
