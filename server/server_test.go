package server_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/idphub/identity-gateway/audit"
	"github.com/idphub/identity-gateway/authflow"
	"github.com/idphub/identity-gateway/identity"
	"github.com/idphub/identity-gateway/keyset"
	"github.com/idphub/identity-gateway/server"
	"github.com/idphub/identity-gateway/session"
	"github.com/idphub/identity-gateway/users"
)

const (
	testIssuer   = "https://login.example.com/test-tenant/v2.0"
	testAudience = "client-app-id"
	testTenant   = "test-tenant"
	testKid      = "sign-key-1"
)

type serverFixture struct {
	key        *rsa.PrivateKey
	auditStore *audit.InMemoryStore
	srv        *httptest.Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := keyset.JWKS{Keys: []keyset.JWK{{
		Kty: "RSA",
		Kid: testKid,
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}}
	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(jwks))
	}))
	t.Cleanup(jwksSrv.Close)

	verifier := identity.NewVerifier(keyset.NewResolver(jwksSrv.URL), testIssuer, testAudience, testTenant)
	userRepo := users.NewInMemoryRepo()
	sessions := session.NewService(session.NewHMACSigner("test-secret"), userRepo)

	auditStore := audit.NewInMemoryStore()
	pipeline := audit.NewPipeline(auditStore, audit.PipelineConfig{Workers: 1, QueueCapacity: 8})
	t.Cleanup(pipeline.Close)
	interceptor := audit.NewInterceptor(pipeline, "identity-gateway")

	orchestrator, err := authflow.NewOrchestrator(nil, verifier, userRepo, sessions, interceptor)
	require.NoError(t, err)

	srv := httptest.NewServer(server.New("DEV", orchestrator, sessions, auditStore, interceptor))
	t.Cleanup(srv.Close)

	return &serverFixture{key: key, auditStore: auditStore, srv: srv}
}

func (f *serverFixture) mintIDToken(t *testing.T) string {
	t.Helper()

	now := time.Now()
	claims := jwtlib.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"tid":   testTenant,
		"oid":   "external-user-1",
		"sub":   "subject-1",
		"email": "jane@example.com",
		"name":  "Jane Doe",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func (f *serverFixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *serverFixture) login(t *testing.T) (accessToken string, refreshCookie *http.Cookie) {
	t.Helper()
	resp := f.postJSON(t, "/auth/login", map[string]string{"idToken": f.mintIDToken(t)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success     bool   `json:"success"`
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Success)

	for _, c := range resp.Cookies() {
		if c.Name == server.RefreshCookieName {
			refreshCookie = c
		}
	}
	require.NotNil(t, refreshCookie)
	return body.AccessToken, refreshCookie
}

func decodeError(t *testing.T, resp *http.Response) (code, message string) {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.False(t, body.Success)
	return body.Error.Code, body.Error.Message
}

func refreshCookieFrom(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == server.RefreshCookieName {
			return c
		}
	}
	return nil
}

func TestLoginEndpoint(t *testing.T) {
	t.Run("successful login returns tokens and sets the refresh cookie", func(t *testing.T) {
		f := newServerFixture(t)

		resp := f.postJSON(t, "/auth/login", map[string]string{"idToken": f.mintIDToken(t)})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		require.Equal(t, true, body["success"])
		require.NotEmpty(t, body["accessToken"])
		require.Equal(t, "Bearer", body["tokenType"])
		// The refresh token travels only in the cookie, never the body.
		require.NotContains(t, string(raw), "refreshToken")

		cookie := refreshCookieFrom(resp)
		require.NotNil(t, cookie)
		require.NotEmpty(t, cookie.Value)
		require.Equal(t, server.RefreshCookiePath, cookie.Path)
		require.True(t, cookie.HttpOnly)
		require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
		require.Equal(t, int(session.DefaultRefreshTokenTTL.Seconds()), cookie.MaxAge)
	})

	t.Run("missing code and idToken is a bad request", func(t *testing.T) {
		f := newServerFixture(t)

		resp := f.postJSON(t, "/auth/login", map[string]string{})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		code, _ := decodeError(t, resp)
		require.Equal(t, "INVALID_REQUEST", code)
	})

	t.Run("malformed identity token maps to TOKEN_MALFORMED", func(t *testing.T) {
		f := newServerFixture(t)

		resp := f.postJSON(t, "/auth/login", map[string]string{"idToken": "not-a-token"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		code, _ := decodeError(t, resp)
		require.Equal(t, "TOKEN_MALFORMED", code)
	})

	t.Run("wrong audience maps to a claim error code", func(t *testing.T) {
		f := newServerFixture(t)

		now := time.Now()
		claims := jwtlib.MapClaims{
			"iss": testIssuer, "aud": "other-app", "tid": testTenant,
			"oid": "x", "email": "jane@example.com",
			"iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
		}
		token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
		token.Header["kid"] = testKid
		signed, err := token.SignedString(f.key)
		require.NoError(t, err)

		resp := f.postJSON(t, "/auth/login", map[string]string{"idToken": signed})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		code, _ := decodeError(t, resp)
		require.Equal(t, "CLAIM_AUDIENCE", code)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	t.Run("valid cookie mints a new access token", func(t *testing.T) {
		f := newServerFixture(t)
		_, cookie := f.login(t)

		req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/auth/refresh", nil)
		require.NoError(t, err)
		req.AddCookie(cookie)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Success     bool   `json:"success"`
			AccessToken string `json:"accessToken"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.True(t, body.Success)
		require.NotEmpty(t, body.AccessToken)
	})

	t.Run("missing cookie is unauthorized and clears the cookie", func(t *testing.T) {
		f := newServerFixture(t)

		resp := f.postJSON(t, "/auth/refresh", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		code, _ := decodeError(t, resp)
		require.Equal(t, "REFRESH_MISSING", code)

		cleared := refreshCookieFrom(resp)
		require.NotNil(t, cleared)
		require.Empty(t, cleared.Value)
		require.Equal(t, -1, cleared.MaxAge)
	})

	t.Run("access token in the cookie is rejected and clears the cookie", func(t *testing.T) {
		f := newServerFixture(t)
		accessToken, _ := f.login(t)

		req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/auth/refresh", nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: server.RefreshCookieName, Value: accessToken})

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		code, _ := decodeError(t, resp)
		require.Equal(t, "REFRESH_WRONG_TOKEN_TYPE", code)

		cleared := refreshCookieFrom(resp)
		require.NotNil(t, cleared)
		require.Empty(t, cleared.Value)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	t.Run("valid bearer token logs out and clears the cookie", func(t *testing.T) {
		f := newServerFixture(t)
		accessToken, _ := f.login(t)

		req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/auth/logout", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+accessToken)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		cleared := refreshCookieFrom(resp)
		require.NotNil(t, cleared)
		require.Empty(t, cleared.Value)
	})

	t.Run("missing authorization header is unauthorized", func(t *testing.T) {
		f := newServerFixture(t)

		resp := f.postJSON(t, "/auth/logout", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAuditLogsEndpoint(t *testing.T) {
	t.Run("returns the paginated envelope", func(t *testing.T) {
		f := newServerFixture(t)
		f.login(t)

		resp, err := http.Get(f.srv.URL + "/audit/logs?actionType=LOGIN&page=1&size=10")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var page struct {
			Content       []map[string]any `json:"content"`
			PageNumber    int              `json:"page"`
			Size          int              `json:"size"`
			TotalElements int              `json:"totalElements"`
			IsFirstPage   bool             `json:"isFirstPage"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
		require.Equal(t, 1, page.PageNumber)
		require.Equal(t, 10, page.Size)
		require.True(t, page.IsFirstPage)
	})

	t.Run("invalid pagination parameter is a bad request", func(t *testing.T) {
		f := newServerFixture(t)

		resp, err := http.Get(f.srv.URL + "/audit/logs?page=zero")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		code, msg := decodeError(t, resp)
		require.Equal(t, "INVALID_REQUEST", code)
		require.Contains(t, msg, "page")
	})
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)

	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))
}
