package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/emberid/ember/assertion"
	"github.com/emberid/ember/auth"
	"github.com/emberid/ember/customs"
	"github.com/emberid/ember/domain"
	"github.com/emberid/ember/totp"
)

type apiStore struct {
	tokens   map[string]*domain.Token
	totp     map[string]*domain.TotpToken
	verified map[string]string
}

func newAPIStore() *apiStore {
	return &apiStore{
		tokens:   make(map[string]*domain.Token),
		totp:     make(map[string]*domain.TotpToken),
		verified: make(map[string]string),
	}
}

func (s *apiStore) GetToken(ctx context.Context, kind domain.TokenKind, id string) (*domain.Token, error) {
	t, ok := s.tokens[string(kind)+":"+id]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *apiStore) CreateToken(ctx context.Context, t *domain.Token) error {
	s.tokens[string(t.Kind)+":"+t.ID] = t
	return nil
}

func (s *apiStore) DeleteToken(ctx context.Context, kind domain.TokenKind, id string) error {
	delete(s.tokens, string(kind)+":"+id)
	return nil
}

func (s *apiStore) PruneSessionToken(ctx context.Context, uid, id string) error {
	delete(s.tokens, string(domain.KindSession)+":"+id)
	return nil
}

func (s *apiStore) DeleteExpiredTokens(ctx context.Context, kind domain.TokenKind) (int64, error) {
	return 0, nil
}

func (s *apiStore) VerifyTokenWithMethod(ctx context.Context, verificationID, uid, method string) error {
	s.verified[verificationID] = method
	return nil
}

func (s *apiStore) GetTotpToken(ctx context.Context, uid string) (*domain.TotpToken, error) {
	t, ok := s.totp[uid]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *apiStore) CreateTotpToken(ctx context.Context, t *domain.TotpToken) error {
	s.totp[t.UID] = t
	return nil
}

func (s *apiStore) ConfirmTotpToken(ctx context.Context, uid string) error {
	t, ok := s.totp[uid]
	if !ok {
		return domain.ErrTokenNotFound
	}
	t.Verified = true
	t.Enabled = true
	return nil
}

func (s *apiStore) DeleteTotpToken(ctx context.Context, uid string) error {
	if _, ok := s.totp[uid]; !ok {
		return domain.ErrTokenNotFound
	}
	delete(s.totp, uid)
	return nil
}

func (s *apiStore) DeleteUnverifiedTotpToken(ctx context.Context, uid string) (bool, error) {
	t, ok := s.totp[uid]
	if !ok || t.Verified {
		return false, nil
	}
	delete(s.totp, uid)
	return true, nil
}

type testEnv struct {
	e     *echo.Echo
	store *apiStore
	token *domain.Token
}

type recordingSigner struct{}

func (recordingSigner) SignCertificate(ctx context.Context, req *assertion.CertificateRequest) (string, error) {
	return "test-cert", nil
}

func newTestEnv(t *testing.T, oauthURL string) *testEnv {
	t.Helper()

	store := newAPIStore()
	token := &domain.Token{
		ID:        strings.Repeat("ab", 32),
		UID:       "0123456789abcdef",
		Kind:      domain.KindSession,
		Secret:    strings.Repeat("cd", 32),
		CreatedAt: time.Now(),
	}
	store.CreateToken(context.Background(), token)

	sessions := auth.NewResolver(store, domain.KindSession)
	manager := totp.NewManager(store, customs.NewMemoryChecker(100, time.Minute), "Ember", totp.DefaultParams())

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var rpc *assertion.RPCClient
	if oauthURL != "" {
		rpc = assertion.NewRPCClient(oauthURL, time.Second)
	}
	minter := assertion.NewMinter(recordingSigner{}, rpc, key, assertion.Config{
		Domain:            "api.accounts.ember.dev",
		CertLifetime:      6 * time.Hour,
		AssertionLifetime: 25 * 365 * 24 * time.Hour,
		OAuthURL:          oauthURL,
		ClientID:          "ember-internal",
	})

	h := NewHandler(sessions, manager, minter, SyntheticEmailResolver("example.com"))
	e := echo.New()
	h.RegisterRoutes(e.Group("/v1"))

	return &testEnv{e: e, store: store, token: token}
}

func (env *testEnv) signedRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()

	var reqBody *strings.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	} else {
		reqBody = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reqBody)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	sr := &auth.SignedRequest{
		TokenID:   env.token.ID,
		Timestamp: time.Now().Unix(),
		Nonce:     "test-nonce",
		Method:    method,
		URI:       req.URL.RequestURI(),
		Host:      req.Host,
	}
	mac, err := auth.SignRequest(sr, env.token)
	if err != nil {
		t.Fatalf("sign request: %v", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf(
		`Hawk id="%s", ts="%d", nonce="%s", mac="%s"`,
		sr.TokenID, sr.Timestamp, sr.Nonce, mac,
	))
	return req
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsUnauthenticated(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoutesRejectMissingAuth(t *testing.T) {
	env := newTestEnv(t, "")

	for _, route := range []struct {
		method, target string
	}{
		{http.MethodPost, "/v1/totp/create"},
		{http.MethodPost, "/v1/totp/destroy"},
		{http.MethodGet, "/v1/totp/exists"},
		{http.MethodPost, "/v1/session/verify/totp"},
		{http.MethodPost, "/v1/oauth/token"},
	} {
		rec := env.do(httptest.NewRequest(route.method, route.target, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", route.method, route.target, rec.Code)
		}
	}
}

func TestAuthRejectsTamperedMAC(t *testing.T) {
	env := newTestEnv(t, "")

	req := env.signedRequest(t, http.MethodGet, "/v1/totp/exists", "")
	header := req.Header.Get("Authorization")
	req.Header.Set("Authorization", strings.Replace(header, `nonce="test-nonce"`, `nonce="other"`, 1))

	rec := env.do(req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for tampered request, got %d", rec.Code)
	}
}

func TestAuthRejectsUnknownToken(t *testing.T) {
	env := newTestEnv(t, "")

	other := &domain.Token{
		ID:     strings.Repeat("ef", 32),
		UID:    "other",
		Kind:   domain.KindSession,
		Secret: strings.Repeat("11", 32),
	}
	signEnv := &testEnv{e: env.e, token: other}
	rec := env.do(signEnv.signedRequest(t, http.MethodGet, "/v1/totp/exists", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown credential, got %d", rec.Code)
	}
}

func TestTotpCreateAndExists(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(env.signedRequest(t, http.MethodPost, "/v1/totp/create", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Secret    string `json:"secret"`
		QRCodeURL string `json:"qrCodeUrl"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("bad create response: %v", err)
	}
	if _, err := hex.DecodeString(created.Secret); err != nil {
		t.Errorf("secret is not hex: %v", err)
	}
	if !strings.HasPrefix(created.QRCodeURL, "data:image/png;base64,") {
		t.Errorf("qrCodeUrl is not an inline PNG: %.40s", created.QRCodeURL)
	}

	// The fresh token is unverified, so exists reports false and reaps it.
	rec = env.do(env.signedRequest(t, http.MethodGet, "/v1/totp/exists", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("exists: expected 200, got %d", rec.Code)
	}
	var exists struct {
		Exists bool `json:"exists"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &exists); err != nil {
		t.Fatalf("bad exists response: %v", err)
	}
	if exists.Exists {
		t.Error("unverified token must not be reported as existing")
	}
}

func TestSessionVerifyTotp(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(env.signedRequest(t, http.MethodPost, "/v1/session/verify/totp", `{"code":"12ab56"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-digit code: expected 400, got %d", rec.Code)
	}
	rec = env.do(env.signedRequest(t, http.MethodPost, "/v1/session/verify/totp", `{"code":"12345"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short code: expected 400, got %d", rec.Code)
	}

	// Well-formed code without an enrolled factor is an auth failure.
	rec = env.do(env.signedRequest(t, http.MethodPost, "/v1/session/verify/totp", `{"code":"123456"}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no factor enrolled: expected 401, got %d: %s", rec.Code, rec.Body.String())
	}

	// With an enrolled factor a wrong code is a normal unsuccessful result.
	env.store.CreateTotpToken(context.Background(), &domain.TotpToken{
		UID:          env.token.UID,
		SharedSecret: strings.Repeat("ff", 20),
		Verified:     true,
		Enabled:      true,
	})
	rec = env.do(env.signedRequest(t, http.MethodPost, "/v1/session/verify/totp", `{"code":"000000"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("wrong code: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad verify response: %v", err)
	}
	if result.Success {
		t.Error("wrong code must not succeed")
	}
}

func TestOAuthTokenExchange(t *testing.T) {
	wantPayload := `{"access_token":"tok-1","token_type":"bearer","scope":"profile"}`
	var gotScope string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotScope = body["scope"]
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(wantPayload))
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL)

	rec := env.do(env.signedRequest(t, http.MethodPost, "/v1/oauth/token", `{"scope":"profile"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != wantPayload {
		t.Errorf("payload was not passed through verbatim: %s", rec.Body.String())
	}
	if gotScope != "profile" {
		t.Errorf("unexpected scope forwarded %q", gotScope)
	}
}
