package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
)

const (
	// DefaultTimeout bounds every gateway call unless configured otherwise.
	DefaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 1 << 20
)

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Paths holds the identity service routes relative to the base URL.
type Paths struct {
	Login          string `yaml:"login" env:"GATEWAY_PATH_LOGIN" env-default:"/auth/login"`
	Register       string `yaml:"register" env:"GATEWAY_PATH_REGISTER" env-default:"/auth/register"`
	Refresh        string `yaml:"refresh" env:"GATEWAY_PATH_REFRESH" env-default:"/auth/refresh"`
	Logout         string `yaml:"logout" env:"GATEWAY_PATH_LOGOUT" env-default:"/auth/logout"`
	CurrentUser    string `yaml:"current_user" env:"GATEWAY_PATH_CURRENT_USER" env-default:"/users/me"`
	ChangePassword string `yaml:"change_password" env:"GATEWAY_PATH_CHANGE_PASSWORD" env-default:"/users/me/password"`
}

// DefaultPaths returns the standard identity service routes.
func DefaultPaths() Paths {
	return Paths{
		Login:          "/auth/login",
		Register:       "/auth/register",
		Refresh:        "/auth/refresh",
		Logout:         "/auth/logout",
		CurrentUser:    "/users/me",
		ChangePassword: "/users/me/password",
	}
}

func (p Paths) withDefaults() Paths {
	d := DefaultPaths()
	if p.Login == "" {
		p.Login = d.Login
	}
	if p.Register == "" {
		p.Register = d.Register
	}
	if p.Refresh == "" {
		p.Refresh = d.Refresh
	}
	if p.Logout == "" {
		p.Logout = d.Logout
	}
	if p.CurrentUser == "" {
		p.CurrentUser = d.CurrentUser
	}
	if p.ChangePassword == "" {
		p.ChangePassword = d.ChangePassword
	}
	return p
}

// Config configures a [Client].
type Config struct {
	BaseURL string
	// Timeout bounds each call. RefreshTimeout, when set, overrides it for Refresh.
	Timeout        time.Duration
	RefreshTimeout time.Duration
	Paths          Paths
}

// Client performs identity service calls.
type Client struct {
	base           *url.URL
	paths          Paths
	timeout        time.Duration
	refreshTimeout time.Duration
	bare           Doer
	authorized     Doer
	now            func() time.Time
}

// NewClient builds a [Client]. bare must not be intercepted by the session pipeline;
// authorized may be nil, in which case authorized calls use bare as well.
func NewClient(cfg Config, bare, authorized Doer) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("gateway base URL is empty")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse gateway base URL")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("gateway base URL must be absolute")
	}
	if bare == nil {
		bare = http.DefaultClient
	}
	if authorized == nil {
		authorized = bare
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	refreshTimeout := cfg.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = timeout
	}

	return &Client{
		base:           base,
		paths:          cfg.Paths.withDefaults(),
		timeout:        timeout,
		refreshTimeout: refreshTimeout,
		bare:           bare,
		authorized:     authorized,
		now:            time.Now,
	}, nil
}

// Paths returns the routes in use.
func (c *Client) Paths() Paths {
	return c.paths
}

// URL resolves a route against the base URL.
func (c *Client) URL(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String()
}

// IsRefreshURL reports whether u targets the refresh route.
func (c *Client) IsRefreshURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	refresh, err := url.Parse(c.URL(c.paths.Refresh))
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, refresh.Host) && strings.TrimRight(u.Path, "/") == strings.TrimRight(refresh.Path, "/")
}

// Login exchanges credentials for a token pair and the user profile.
func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResult, error) {
	const op = "login"
	body, err := c.call(ctx, c.bare, c.timeout, op, http.MethodPost, c.paths.Login, "", creds, classifyLogin)
	if err != nil {
		return AuthResult{}, err
	}
	return c.authResult(op, body)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, reg Registration) (AuthResult, error) {
	const op = "register"
	body, err := c.call(ctx, c.bare, c.timeout, op, http.MethodPost, c.paths.Register, "", reg, classifyRegister)
	if err != nil {
		return AuthResult{}, err
	}
	return c.authResult(op, body)
}

// Refresh exchanges a refresh token for a new access token. It always uses the bare
// channel.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	const op = "refresh"
	if refreshToken == "" {
		return TokenPair{}, newError(op, ErrRefreshInvalid, 0, "no refresh token", nil)
	}
	payload := map[string]string{
		"refreshToken":  refreshToken,
		"refresh_token": refreshToken,
	}
	body, err := c.call(ctx, c.bare, c.refreshTimeout, op, http.MethodPost, c.paths.Refresh, "", payload, classifyRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	fields, err := adaptResponse(body, false)
	if err != nil {
		return TokenPair{}, newError(op, ErrServiceError, 0, "", pkgerrors.Wrap(err, "decode refresh response"))
	}
	if fields.AccessToken == "" {
		return TokenPair{}, newError(op, ErrServiceError, 0, "", errMissingAccessToken)
	}
	return TokenPair{AccessToken: fields.AccessToken, RefreshToken: fields.RefreshToken}, nil
}

// FetchCurrentUser reads the profile owned by accessToken.
func (c *Client) FetchCurrentUser(ctx context.Context, accessToken string) (User, error) {
	const op = "fetch_current_user"
	body, err := c.call(ctx, c.bare, c.timeout, op, http.MethodGet, c.paths.CurrentUser, accessToken, nil, classifyCurrentUser)
	if err != nil {
		return User{}, err
	}
	return c.userFrom(op, body)
}

// UpdateProfile applies patch through the authorized channel.
func (c *Client) UpdateProfile(ctx context.Context, patch ProfilePatch) (User, error) {
	const op = "update_profile"
	body, err := c.call(ctx, c.authorized, c.timeout, op, http.MethodPatch, c.paths.CurrentUser, "", patch, classifyAccount)
	if err != nil {
		return User{}, err
	}
	return c.userFrom(op, body)
}

// ChangePassword changes the password through the authorized channel.
func (c *Client) ChangePassword(ctx context.Context, change PasswordChange) error {
	_, err := c.call(ctx, c.authorized, c.timeout, "change_password", http.MethodPost, c.paths.ChangePassword, "", change, classifyAccount)
	return err
}

// DeleteAccount deletes the account through the authorized channel after the service
// confirms password.
func (c *Client) DeleteAccount(ctx context.Context, password string) error {
	payload := map[string]string{"password": password}
	_, err := c.call(ctx, c.authorized, c.timeout, "delete_account", http.MethodDelete, c.paths.CurrentUser, "", payload, classifyAccount)
	return err
}

// Logout asks the service to invalidate accessToken. Callers treat failures as
// best effort.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	_, err := c.call(ctx, c.bare, c.timeout, "logout", http.MethodPost, c.paths.Logout, accessToken, nil, classifyLogout)
	return err
}

func (c *Client) authResult(op string, body []byte) (AuthResult, error) {
	fields, err := adaptResponse(body, false)
	if err != nil {
		return AuthResult{}, newError(op, ErrServiceError, 0, "", pkgerrors.Wrapf(err, "decode %s response", op))
	}
	switch {
	case fields.AccessToken == "":
		return AuthResult{}, newError(op, ErrServiceError, 0, "", errMissingAccessToken)
	case fields.RefreshToken == "":
		return AuthResult{}, newError(op, ErrServiceError, 0, "", errMissingRefreshToken)
	case fields.User == nil:
		return AuthResult{}, newError(op, ErrServiceError, 0, "", errMissingUser)
	}
	return AuthResult{
		AccessToken:  fields.AccessToken,
		RefreshToken: fields.RefreshToken,
		User:         *fields.User,
	}, nil
}

func (c *Client) userFrom(op string, body []byte) (User, error) {
	fields, err := adaptResponse(body, true)
	if err != nil {
		return User{}, newError(op, ErrServiceError, 0, "", pkgerrors.Wrapf(err, "decode %s response", op))
	}
	if fields.User == nil {
		return User{}, newError(op, ErrServiceError, 0, "", errMissingUser)
	}
	return *fields.User, nil
}

// call performs one round trip and returns the body of a 2xx response.
func (c *Client) call(
	ctx context.Context,
	doer Doer,
	timeout time.Duration,
	op, method, path, bearer string,
	payload any,
	classify classifier,
) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, newError(op, ErrServiceError, 0, "", pkgerrors.Wrap(err, "encode request"))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(callCtx, method, c.URL(path), reader)
	if err != nil {
		return nil, newError(op, ErrServiceError, 0, "", pkgerrors.Wrap(err, "build request"))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := doer.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, newError(op, ErrServiceError, 0, "", ctxErr)
		}
		return nil, newError(op, ErrServiceError, 0, "", pkgerrors.Wrapf(err, "%s %s", method, path))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, newError(op, ErrServiceError, resp.StatusCode, "", pkgerrors.Wrap(err, "read response"))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	kind := classify(resp.StatusCode)
	message := messageFromBody(body)
	if message == "" {
		message = describeStatus(resp.StatusCode)
	}
	gwErr := newError(op, kind, resp.StatusCode, message, nil)
	if errors.Is(kind, ErrRateLimited) {
		gwErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		if gwErr.RetryAfter == 0 {
			if secs := retryAfterFromBody(body); secs > 0 {
				gwErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	}
	return nil, gwErr
}
