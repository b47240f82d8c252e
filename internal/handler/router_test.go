package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/questmap/internal/auth"
	"github.com/hitoshi/questmap/internal/leaderboard"
	"github.com/hitoshi/questmap/internal/metrics"
	"github.com/hitoshi/questmap/internal/middleware"
	"github.com/hitoshi/questmap/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

// --- モック定義 ---

type mockSessionResolver struct {
	resolveFn func(ctx context.Context, sessionID string) (*model.User, error)
	calls     int
}

func (m *mockSessionResolver) ResolveSession(ctx context.Context, sessionID string) (*model.User, error) {
	m.calls++
	if m.resolveFn != nil {
		return m.resolveFn(ctx, sessionID)
	}
	return nil, auth.ErrSessionNotFound
}

var _ middleware.SessionResolver = (*mockSessionResolver)(nil)

type testRouter struct {
	handler  http.Handler
	resolver *mockSessionResolver
	users    *mockUserService
	auth     *mockAuthService
	registry *prometheus.Registry
}

// newTestRouter はモック依存で全ルートを組み立てる。
// セッションIDが "valid-session" のときだけbob()としてログイン済みになる。
func newTestRouter(t *testing.T) *testRouter {
	t.Helper()

	tr := &testRouter{
		resolver: &mockSessionResolver{
			resolveFn: func(_ context.Context, id string) (*model.User, error) {
				if id == "valid-session" {
					return bob(), nil
				}
				return nil, auth.ErrSessionNotFound
			},
		},
		users:    &mockUserService{},
		auth:     &mockAuthService{},
		registry: prometheus.NewRegistry(),
	}

	collector := metrics.NewCollector(tr.registry)
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	tr.handler = NewRouter(&RouterDeps{
		SessionResolver: tr.resolver,
		SessionConfig:   middleware.SessionConfig{Observe: collector.RecordSessionResolution},
		RateLimiter:     rl,
		Metrics:         collector,
		MetricsHandler:  metrics.Handler(tr.registry),
		HealthChecker:   &mockHealthChecker{},

		AuthService: tr.auth,
		AuthConfig:  AuthHandlerConfig{BaseURL: "http://localhost:3000", SessionMaxAge: 86400},

		LeaderboardService: leaderboard.NewService(),
		UserService:        tr.users,
		Static:             newStaticFixture(t),
	})

	return tr
}

func (tr *testRouter) do(req *http.Request) *http.Response {
	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, req)
	return w.Result()
}

// --- テスト ---

func TestNewRouter_AllRoutesRegistered(t *testing.T) {
	tr := newTestRouter(t)
	tr.auth.getLoginURLFn = func(state string) string {
		return "https://www.facebook.com/v19.0/dialog/oauth?state=" + state
	}
	tr.users.getFn = func(context.Context, string) (*model.User, error) { return bob(), nil }

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/auth/facebook", http.StatusTemporaryRedirect},
		{http.MethodGet, "/auth/facebook/callback?error=access_denied", http.StatusTemporaryRedirect},
		{http.MethodGet, "/auth/me", http.StatusUnauthorized},
		{http.MethodGet, "/auth/csrf-token", http.StatusOK},
		{http.MethodPost, "/auth/logout", http.StatusForbidden},
		{http.MethodGet, "/api/leaderboard", http.StatusOK},
		{http.MethodGet, "/api/getUserInfo?id=" + bob().ID, http.StatusOK},
		{http.MethodGet, "/api/users/" + bob().ID, http.StatusOK},
		{http.MethodGet, "/api/getAllUsers", http.StatusOK},
		{http.MethodGet, "/src/styles/styles.css", http.StatusOK},
		{http.MethodGet, "/src/styles/leaflet.css", http.StatusOK},
		{http.MethodGet, "/bundle.js", http.StatusOK},
		{http.MethodGet, "/login", http.StatusOK},
		{http.MethodGet, "/api/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := tr.do(httptest.NewRequest(tt.method, tt.path, nil))
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestNewRouter_SessionAttachedToAPI(t *testing.T) {
	tr := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-session"})
	resp := tr.do(req)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body userResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.FacebookID != bob().FacebookID {
		t.Errorf("facebook_id = %q, want %q", body.FacebookID, bob().FacebookID)
	}
}

func TestNewRouter_NoCookie_NoSessionLookup(t *testing.T) {
	tr := newTestRouter(t)

	resp := tr.do(httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if tr.resolver.calls != 0 {
		t.Errorf("resolver called %d times, want 0", tr.resolver.calls)
	}
}

func TestNewRouter_HealthAndMetrics_SkipSession(t *testing.T) {
	tr := newTestRouter(t)
	tr.resolver.resolveFn = func(context.Context, string) (*model.User, error) {
		return nil, auth.ErrSessionUnavailable
	}

	for _, path := range []string{"/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "any"})
		if resp := tr.do(req); resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}

	// 通常のルートはセッションストア障害で503になる
	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "any"})
	if resp := tr.do(req); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestNewRouter_Logout_WithCSRF(t *testing.T) {
	tr := newTestRouter(t)
	var loggedOut string
	tr.auth.logoutFn = func(_ context.Context, id string) error {
		loggedOut = id
		return nil
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-session"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok"})
	req.Header.Set("X-CSRF-Token", "tok")
	resp := tr.do(req)

	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loggedOut != "valid-session" {
		t.Errorf("logged out session = %q, want %q", loggedOut, "valid-session")
	}
}

func TestNewRouter_SecurityHeadersAndRequestID(t *testing.T) {
	tr := newTestRouter(t)

	resp := tr.do(httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))

	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("Permissions-Policy"); !strings.Contains(got, "geolocation=(self)") {
		t.Errorf("Permissions-Policy = %q", got)
	}
}

func TestNewRouter_MetricsRecordsTraffic(t *testing.T) {
	tr := newTestRouter(t)

	tr.do(httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	tr.do(httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	resp := tr.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`questmap_http_status_total{status_code="404"} 1`,
		`questmap_session_resolution_total{outcome="anonymous"} 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics should contain %q", want)
		}
	}
}
