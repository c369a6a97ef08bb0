// Package identitytest runs an in-process fake of the identity service routes the
// gateway talks to, plus a protected resource under /api/ for pipeline tests.
package identitytest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

var signingKey = []byte("identitytest-signing-key")

// Route names used for call counters and status overrides.
const (
	RouteLogin          = "login"
	RouteRegister       = "register"
	RouteRefresh        = "refresh"
	RouteLogout         = "logout"
	RouteMe             = "me"
	RouteUpdateProfile  = "update_profile"
	RouteChangePassword = "change_password"
	RouteDeleteAccount  = "delete_account"
	RouteAPI            = "api"
)

// User mirrors the profile the service returns.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Role     string `json:"role,omitempty"`
	ClinicID string `json:"clinicId,omitempty"`
	DoctorID string `json:"doctorId,omitempty"`
}

// Style selects the token field naming used in responses.
type Style int

const (
	StyleCamel Style = iota
	StyleSnake
	StyleNestedData
)

type account struct {
	user     User
	password string
}

type override struct {
	status     int
	remaining  int
	retryAfter string
}

// APICall records one request to the protected resource.
type APICall struct {
	Method string
	Path   string
	Token  string
	Body   string
	Status int
}

// Server is the fake identity service.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	accounts      map[string]*account // by email
	access        map[string]string   // access token -> user id
	refresh       map[string]string   // refresh token -> user id
	accessSeq     int
	accessTTL     time.Duration
	accessExp     map[string]time.Time
	refreshSeq    int
	rotateRefresh bool
	refreshDelay  time.Duration
	style         Style
	overrides     map[string]*override
	apiCalls      []APICall
	lastRefresh   string

	calls sync.Map // route -> *atomic.Int64
}

// NewServer starts a fake identity service. Close it with Close.
func NewServer() *Server {
	s := &Server{
		accounts:  make(map[string]*account),
		access:    make(map[string]string),
		accessExp: make(map[string]time.Time),
		refresh:   make(map[string]string),
		overrides: make(map[string]*override),
	}

	r := chi.NewRouter()
	r.Post("/auth/login", s.wrap(RouteLogin, s.handleLogin))
	r.Post("/auth/register", s.wrap(RouteRegister, s.handleRegister))
	r.Post("/auth/refresh", s.wrap(RouteRefresh, s.handleRefresh))
	r.Post("/auth/logout", s.wrap(RouteLogout, s.handleLogout))
	r.Get("/users/me", s.wrap(RouteMe, s.handleMe))
	r.Patch("/users/me", s.wrap(RouteUpdateProfile, s.handleUpdateProfile))
	r.Delete("/users/me", s.wrap(RouteDeleteAccount, s.handleDeleteAccount))
	r.Post("/users/me/password", s.wrap(RouteChangePassword, s.handleChangePassword))
	r.HandleFunc("/api/*", s.wrap(RouteAPI, s.handleAPI))

	s.Server = httptest.NewServer(r)
	return s
}

// AddUser seeds an account.
func (s *Server) AddUser(u User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(u.Email)] = &account{user: u, password: password}
}

// IssueTokens mints a pair for an existing user id, as a previous login would have.
func (s *Server) IssueTokens(userID string) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newAccessLocked(userID), s.newRefreshLocked(userID)
}

// ExpireAccessTokens rejects every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]string)
	s.accessExp = make(map[string]time.Time)
}

// RevokeRefreshTokens rejects every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]string)
}

// SetRotateRefresh makes refresh responses carry a new refresh token.
func (s *Server) SetRotateRefresh(rotate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateRefresh = rotate
}

// SetAccessTTL makes new access tokens signed JWTs that expire after ttl. Zero restores
// opaque "T<n>" tokens that never expire.
func (s *Server) SetAccessTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = ttl
}

// SetRefreshDelay holds refresh responses for d.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// SetStyle selects the token field naming used in responses.
func (s *Server) SetStyle(style Style) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.style = style
}

// Override makes the next times calls to route answer status. times < 0 means forever.
// retryAfter, when non-empty, is sent as the Retry-After header.
func (s *Server) Override(route string, status, times int, retryAfter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[route] = &override{status: status, remaining: times, retryAfter: retryAfter}
}

// ClearOverride removes a status override.
func (s *Server) ClearOverride(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, route)
}

// Calls returns how many requests reached route.
func (s *Server) Calls(route string) int64 {
	v, ok := s.calls.Load(route)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// APICalls returns the recorded protected resource calls.
func (s *Server) APICalls() []APICall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]APICall, len(s.apiCalls))
	copy(out, s.apiCalls)
	return out
}

// LastRefreshToken returns the refresh token presented by the latest refresh call.
func (s *Server) LastRefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}

// UserByEmail returns the stored profile.
func (s *Server) UserByEmail(email string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return User{}, false
	}
	return acc.user, true
}

func (s *Server) counter(route string) *atomic.Int64 {
	v, _ := s.calls.LoadOrStore(route, &atomic.Int64{})
	return v.(*atomic.Int64)
}

func (s *Server) wrap(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.counter(route).Add(1)

		s.mu.Lock()
		ov, ok := s.overrides[route]
		var status int
		var retryAfter string
		if ok && ov.remaining != 0 {
			status = ov.status
			retryAfter = ov.retryAfter
			if ov.remaining > 0 {
				ov.remaining--
			}
		}
		s.mu.Unlock()

		if status != 0 {
			if retryAfter != "" {
				w.Header().Set("Retry-After", retryAfter)
			}
			writeJSON(w, status, map[string]string{"message": "forced " + strconv.Itoa(status)})
			return
		}
		next(w, r)
	}
}

func (s *Server) newAccessLocked(userID string) string {
	s.accessSeq++
	token := "T" + strconv.Itoa(s.accessSeq)
	if s.accessTTL > 0 {
		exp := time.Now().Add(s.accessTTL)
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ID:        token,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		}).SignedString(signingKey)
		if err == nil {
			token = signed
			s.accessExp[token] = exp
		}
	}
	s.access[token] = userID
	return token
}

// validAccessLocked reports the owner of an unexpired access token.
func (s *Server) validAccessLocked(token string) (string, bool) {
	userID, ok := s.access[token]
	if !ok {
		return "", false
	}
	if exp, ok := s.accessExp[token]; ok && !time.Now().Before(exp) {
		return "", false
	}
	return userID, true
}

func (s *Server) newRefreshLocked(userID string) string {
	s.refreshSeq++
	token := "R" + strconv.Itoa(s.refreshSeq)
	s.refresh[token] = userID
	return token
}

func (s *Server) tokenBody(access, refresh string, user *User) map[string]any {
	body := map[string]any{}
	tokens := map[string]any{}
	switch s.style {
	case StyleSnake:
		tokens["token"] = access
		if refresh != "" {
			tokens["refresh_token"] = refresh
		}
	default:
		tokens["accessToken"] = access
		if refresh != "" {
			tokens["refreshToken"] = refresh
		}
	}
	if s.style == StyleNestedData {
		if user != nil {
			tokens["user"] = user
		}
		body["data"] = tokens
		return body
	}
	for k, v := range tokens {
		body[k] = v
	}
	if user != nil {
		body["user"] = user
	}
	return body
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(req.Email)]
	if !ok || acc.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid email or password"})
		return
	}
	user := acc.user
	writeJSON(w, http.StatusOK, s.tokenBody(s.newAccessLocked(user.ID), s.newRefreshLocked(user.ID), &user))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "email is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(req.Email)
	if _, exists := s.accounts[key]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "email already registered"})
		return
	}
	for _, acc := range s.accounts {
		if req.Username != "" && acc.user.Username == req.Username {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "username already taken"})
			return
		}
	}
	user := User{
		ID:       "u" + strconv.Itoa(len(s.accounts)+1),
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
	}
	s.accounts[key] = &account{user: user, password: req.Password}
	writeJSON(w, http.StatusCreated, s.tokenBody(s.newAccessLocked(user.ID), s.newRefreshLocked(user.ID), &user))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken      string `json:"refreshToken"`
		RefreshTokenSnake string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	token := req.RefreshToken
	if token == "" {
		token = req.RefreshTokenSnake
	}

	s.mu.Lock()
	delay := s.refreshDelay
	s.lastRefresh = token
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.refresh[token]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "refresh token expired"})
		return
	}
	access := s.newAccessLocked(userID)
	refresh := ""
	if s.rotateRefresh {
		delete(s.refresh, token)
		refresh = s.newRefreshLocked(userID)
	}
	writeJSON(w, http.StatusOK, s.tokenBody(access, refresh, nil))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	s.mu.Lock()
	delete(s.access, token)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) authenticate(r *http.Request) (*account, bool) {
	userID, ok := s.validAccessLocked(bearer(r))
	if !ok {
		return nil, false
	}
	for _, acc := range s.accounts {
		if acc.user.ID == userID {
			return acc, true
		}
	}
	return nil, false
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token rejected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": acc.user})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch struct {
		Name     *string `json:"name"`
		Username *string `json:"username"`
		Email    *string `json:"email"`
		Avatar   *string `json:"avatar"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token rejected"})
		return
	}
	if patch.Username != nil {
		for _, other := range s.accounts {
			if other != acc && other.user.Username == *patch.Username {
				writeJSON(w, http.StatusConflict, map[string]string{"message": "username already taken"})
				return
			}
		}
		acc.user.Username = *patch.Username
	}
	if patch.Name != nil {
		acc.user.Name = *patch.Name
	}
	if patch.Avatar != nil {
		acc.user.Avatar = *patch.Avatar
	}
	if patch.Email != nil {
		acc.user.Email = *patch.Email
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": acc.user})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token rejected"})
		return
	}
	if acc.password != req.CurrentPassword {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "current password is wrong"})
		return
	}
	acc.password = req.NewPassword
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token rejected"})
		return
	}
	if acc.password != req.Password {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "password is wrong"})
		return
	}
	delete(s.accounts, strings.ToLower(acc.user.Email))
	for token, id := range s.access {
		if id == acc.user.ID {
			delete(s.access, token)
		}
	}
	for token, id := range s.refresh {
		if id == acc.user.ID {
			delete(s.refresh, token)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	token := bearer(r)

	s.mu.Lock()
	_, ok := s.validAccessLocked(token)
	status := http.StatusOK
	if !ok {
		status = http.StatusUnauthorized
	}
	s.apiCalls = append(s.apiCalls, APICall{
		Method: r.Method,
		Path:   r.URL.Path,
		Token:  token,
		Body:   string(body),
		Status: status,
	})
	s.mu.Unlock()

	if !ok {
		writeJSON(w, status, map[string]string{"message": "token rejected"})
		return
	}
	writeJSON(w, status, map[string]any{"ok": true, "path": r.URL.Path, "body": string(body)})
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	value := r.Header.Get("Authorization")
	if !strings.HasPrefix(value, prefix) {
		return ""
	}
	return value[len(prefix):]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
