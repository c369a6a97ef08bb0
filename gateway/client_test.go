package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goSession/internal/identitytest"
)

func newTestClient(t *testing.T) (*Client, *identitytest.Server) {
	t.Helper()

	srv := identitytest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser(identitytest.User{ID: "u1", Name: "Ada", Username: "ada", Email: "ada@example.com", Role: "doctor"}, "secret-pass")

	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, srv.Client(), nil)
	require.NoError(t, err)
	return c, srv
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	_, err := NewClient(Config{}, nil, nil)
	require.Error(t, err)

	_, err = NewClient(Config{BaseURL: "/relative"}, nil, nil)
	require.Error(t, err)
}

func TestLoginSuccess(t *testing.T) {
	c, _ := newTestClient(t)

	res, err := c.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "secret-pass"})
	require.NoError(t, err)
	require.Equal(t, "T1", res.AccessToken)
	require.Equal(t, "R1", res.RefreshToken)
	require.Equal(t, "u1", res.User.ID)
	require.Equal(t, "doctor", res.User.Role)
}

func TestLoginStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrInvalidCredentials},
		{http.StatusUnauthorized, ErrInvalidCredentials},
		{http.StatusForbidden, ErrInvalidCredentials},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrServiceError},
		{http.StatusBadGateway, ErrServiceError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, srv := newTestClient(t)
			srv.Override(identitytest.RouteLogin, tt.status, 1, "")

			_, err := c.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "secret-pass"})
			require.ErrorIs(t, err, tt.want)
			require.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "nope"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, "login", gwErr.Op)
	require.Equal(t, "invalid email or password", gwErr.Message)
}

func TestLoginRetryAfterHeader(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Override(identitytest.RouteLogin, http.StatusTooManyRequests, 1, "7")

	_, err := c.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "secret-pass"})
	require.ErrorIs(t, err, ErrRateLimited)

	wait, ok := RetryAfter(err)
	require.True(t, ok)
	require.Equal(t, 7*time.Second, wait)
}

func TestLoginRetryAfterBodyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"slow down","retry_after":12}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = c.Login(context.Background(), Credentials{Email: "a@b.c", Password: "x"})
	wait, ok := RetryAfter(err)
	require.True(t, ok)
	require.Equal(t, 12*time.Second, wait)
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	value := now.Add(30 * time.Second).Format(http.TimeFormat)
	require.Equal(t, 30*time.Second, parseRetryAfter(value, now))
	require.Zero(t, parseRetryAfter("-4", now))
	require.Zero(t, parseRetryAfter("soon", now))
}

func TestRegisterMapping(t *testing.T) {
	c, _ := newTestClient(t)

	res, err := c.Register(context.Background(), Registration{Name: "Bob", Username: "bob", Email: "bob@example.com", Password: "hunter22"})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.Equal(t, "bob", res.User.Username)

	_, err = c.Register(context.Background(), Registration{Email: "bob@example.com", Password: "hunter22"})
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, http.StatusConflict, StatusCode(err))
}

func TestRefreshKeepsOmittedRefreshToken(t *testing.T) {
	c, srv := newTestClient(t)
	_, refresh := srv.IssueTokens("u1")

	pair, err := c.Refresh(context.Background(), refresh)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.Empty(t, pair.RefreshToken)
	require.Equal(t, refresh, srv.LastRefreshToken())
}

func TestRefreshRotation(t *testing.T) {
	c, srv := newTestClient(t)
	srv.SetRotateRefresh(true)
	_, refresh := srv.IssueTokens("u1")

	pair, err := c.Refresh(context.Background(), refresh)
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, refresh, pair.RefreshToken)
}

func TestRefreshMapping(t *testing.T) {
	c, srv := newTestClient(t)

	_, err := c.Refresh(context.Background(), "unknown")
	require.ErrorIs(t, err, ErrRefreshInvalid)

	_, err = c.Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrRefreshInvalid)

	_, refresh := srv.IssueTokens("u1")
	srv.Override(identitytest.RouteRefresh, http.StatusServiceUnavailable, 1, "")
	_, err = c.Refresh(context.Background(), refresh)
	require.ErrorIs(t, err, ErrServiceError)
	require.NotErrorIs(t, err, ErrRefreshInvalid)
}

func TestRefreshTimeoutIsServiceError(t *testing.T) {
	srv := identitytest.NewServer()
	defer srv.Close()
	srv.SetRefreshDelay(500 * time.Millisecond)
	_, refresh := srv.IssueTokens("u1")

	c, err := NewClient(Config{BaseURL: srv.URL, RefreshTimeout: 30 * time.Millisecond}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = c.Refresh(context.Background(), refresh)
	require.ErrorIs(t, err, ErrServiceError)
}

func TestTransportFailureIsServiceError(t *testing.T) {
	srv := identitytest.NewServer()
	base := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: base, Timeout: time.Second}, nil, nil)
	require.NoError(t, err)

	_, err = c.Login(context.Background(), Credentials{Email: "a@b.c", Password: "x"})
	require.ErrorIs(t, err, ErrServiceError)
}

func TestFetchCurrentUser(t *testing.T) {
	c, srv := newTestClient(t)
	access, _ := srv.IssueTokens("u1")

	user, err := c.FetchCurrentUser(context.Background(), access)
	require.NoError(t, err)
	require.Equal(t, "ada", user.Username)

	srv.ExpireAccessTokens()
	_, err = c.FetchCurrentUser(context.Background(), access)
	require.ErrorIs(t, err, ErrUnauthorized)

	srv.Override(identitytest.RouteMe, http.StatusInternalServerError, 1, "")
	_, err = c.FetchCurrentUser(context.Background(), access)
	require.ErrorIs(t, err, ErrServiceError)
}

func TestAuthorizedOperationsUseAuthorizedChannel(t *testing.T) {
	srv := identitytest.NewServer()
	defer srv.Close()
	srv.AddUser(identitytest.User{ID: "u1", Username: "ada", Email: "ada@example.com"}, "old-pass")
	srv.AddUser(identitytest.User{ID: "u2", Username: "bob", Email: "bob@example.com"}, "bob-pass")
	access, _ := srv.IssueTokens("u1")

	authorized := doerFunc(func(req *http.Request) (*http.Response, error) {
		req.Header.Set("Authorization", "Bearer "+access)
		return srv.Client().Do(req)
	})
	c, err := NewClient(Config{BaseURL: srv.URL}, srv.Client(), authorized)
	require.NoError(t, err)
	ctx := context.Background()

	name := "Ada L."
	user, err := c.UpdateProfile(ctx, ProfilePatch{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Ada L.", user.Name)

	taken := "bob"
	_, err = c.UpdateProfile(ctx, ProfilePatch{Username: &taken})
	require.ErrorIs(t, err, ErrValidation)

	err = c.ChangePassword(ctx, PasswordChange{CurrentPassword: "wrong", NewPassword: "new-pass"})
	require.ErrorIs(t, err, ErrValidation)
	require.NoError(t, c.ChangePassword(ctx, PasswordChange{CurrentPassword: "old-pass", NewPassword: "new-pass"}))

	require.ErrorIs(t, c.DeleteAccount(ctx, "old-pass"), ErrValidation)
	require.NoError(t, c.DeleteAccount(ctx, "new-pass"))
	_, ok := srv.UserByEmail("ada@example.com")
	require.False(t, ok)

	require.ErrorIs(t, c.DeleteAccount(ctx, "new-pass"), ErrUnauthorized)
}

func TestLogout(t *testing.T) {
	c, srv := newTestClient(t)
	access, _ := srv.IssueTokens("u1")

	require.NoError(t, c.Logout(context.Background(), access))
	require.EqualValues(t, 1, srv.Calls(identitytest.RouteLogout))

	srv.Override(identitytest.RouteLogout, http.StatusBadGateway, 1, "")
	require.ErrorIs(t, c.Logout(context.Background(), access), ErrServiceError)
}

func TestResponseStyles(t *testing.T) {
	for _, style := range []identitytest.Style{identitytest.StyleCamel, identitytest.StyleSnake, identitytest.StyleNestedData} {
		c, srv := newTestClient(t)
		srv.SetStyle(style)

		res, err := c.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "secret-pass"})
		require.NoError(t, err)
		require.Equal(t, "T1", res.AccessToken)
		require.Equal(t, "R1", res.RefreshToken)
		require.Equal(t, "u1", res.User.ID)
	}
}

func TestAdaptResponsePrecedence(t *testing.T) {
	body := []byte(`{
		"token": "third",
		"access_token": "second",
		"accessToken": "first",
		"refresh_token": "r-snake",
		"data": {"refreshToken": "r-nested", "user": {"id": "nested"}},
		"user": {"_id": "top", "displayName": "Top User", "clinic_id": "c9"}
	}`)
	fields, err := adaptResponse(body, false)
	require.NoError(t, err)
	require.Equal(t, "first", fields.AccessToken)
	require.Equal(t, "r-snake", fields.RefreshToken)
	require.NotNil(t, fields.User)
	require.Equal(t, "top", fields.User.ID)
	require.Equal(t, "Top User", fields.User.Name)
	require.Equal(t, "c9", fields.User.ClinicID)

	fields, err = adaptResponse([]byte(`{"data":{"id":"u7","email":"x@y.z"}}`), false)
	require.NoError(t, err)
	require.Equal(t, "u7", fields.User.ID)

	fields, err = adaptResponse([]byte(`{"id":"u8"}`), false)
	require.NoError(t, err)
	require.Nil(t, fields.User)

	fields, err = adaptResponse([]byte(`{"id":"u8"}`), true)
	require.NoError(t, err)
	require.Equal(t, "u8", fields.User.ID)

	_, err = adaptResponse([]byte(`not json`), false)
	require.Error(t, err)
}

func TestRefreshWithoutAccessTokenIsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"refreshToken":"R2"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = c.Refresh(context.Background(), "R1")
	require.ErrorIs(t, err, ErrServiceError)
}

func TestURLAndIsRefreshURL(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "https://id.example.com/v1/", Paths: Paths{Refresh: "/session/refresh"}}, nil, nil)
	require.NoError(t, err)

	require.Equal(t, "https://id.example.com/v1/auth/login", c.URL(c.Paths().Login))
	require.Equal(t, "https://id.example.com/v1/session/refresh", c.URL(c.Paths().Refresh))

	u, _ := url.Parse("https://id.example.com/v1/session/refresh/")
	require.True(t, c.IsRefreshURL(u))
	u, _ = url.Parse("https://id.example.com/v1/users/me")
	require.False(t, c.IsRefreshURL(u))
	u, _ = url.Parse("https://other.example.com/v1/session/refresh")
	require.False(t, c.IsRefreshURL(u))
	require.False(t, c.IsRefreshURL(nil))
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }
