package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// fakeFacebook はトークンエンドポイントとGraph APIを模擬するテストサーバー。
type fakeFacebook struct {
	server *httptest.Server

	tokenStatus  int
	profileBody  string
	profileCode  int
	gotTokenForm url.Values
	gotMeQuery   url.Values
	gotAuthz     string
}

func newFakeFacebook(t *testing.T) *fakeFacebook {
	t.Helper()

	f := &fakeFacebook{
		tokenStatus: http.StatusOK,
		profileCode: http.StatusOK,
		profileBody: `{
			"id": "10001",
			"first_name": "Bob",
			"last_name": "Builder",
			"email": "bob@example.com",
			"picture": {"data": {"url": "https://platform-lookaside.fbsbx.com/platform/profilepic/?asid=10001", "is_silhouette": false}}
		}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.gotTokenForm = r.PostForm
		if f.tokenStatus != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.tokenStatus)
			w.Write([]byte(`{"error":{"message":"Invalid verification code format.","type":"OAuthException","code":100}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-token-123","token_type":"bearer","expires_in":5183944}`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		f.gotMeQuery = r.URL.Query()
		f.gotAuthz = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.profileCode)
		w.Write([]byte(f.profileBody))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeFacebook) provider() *FacebookOAuthProvider {
	return NewFacebookOAuthProvider(FacebookOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "app-secret",
		RedirectURL:  "http://localhost:3000/auth/facebook/callback",
		HTTPClient:   f.server.Client(),
		AuthURL:      f.server.URL + "/dialog/oauth",
		TokenURL:     f.server.URL + "/oauth/access_token",
		GraphURL:     f.server.URL,
	})
}

func TestFacebookGetLoginURL_ContainsRequiredParams(t *testing.T) {
	p := NewFacebookOAuthProvider(FacebookOAuthConfig{
		ClientID:    "client-id",
		RedirectURL: "http://localhost:3000/auth/facebook/callback",
	})

	raw := p.GetLoginURL("state-abc")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse login URL: %v", err)
	}
	if u.Host != "www.facebook.com" {
		t.Errorf("host = %q, want www.facebook.com", u.Host)
	}
	if u.Path != "/v19.0/dialog/oauth" {
		t.Errorf("path = %q, want /v19.0/dialog/oauth", u.Path)
	}

	q := u.Query()
	checks := map[string]string{
		"client_id":     "client-id",
		"redirect_uri":  "http://localhost:3000/auth/facebook/callback",
		"response_type": "code",
		"scope":         "email public_profile",
		"auth_type":     "rerequest",
		"state":         "state-abc",
	}
	for key, want := range checks {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestFacebookGetLoginURL_UsesConfiguredGraphVersion(t *testing.T) {
	p := NewFacebookOAuthProvider(FacebookOAuthConfig{
		ClientID:     "client-id",
		GraphVersion: "v21.0",
	})

	raw := p.GetLoginURL("s")
	if !strings.HasPrefix(raw, "https://www.facebook.com/v21.0/dialog/oauth?") {
		t.Errorf("login URL = %q, want v21.0 dialog endpoint", raw)
	}
}

func TestFacebookExchangeCode_Success(t *testing.T) {
	fb := newFakeFacebook(t)

	info, err := fb.provider().ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if info.ProviderUserID != "10001" {
		t.Errorf("ProviderUserID = %q, want %q", info.ProviderUserID, "10001")
	}
	if info.FirstName != "Bob" || info.LastName != "Builder" {
		t.Errorf("name = %q %q, want Bob Builder", info.FirstName, info.LastName)
	}
	if info.Email != "bob@example.com" {
		t.Errorf("Email = %q, want %q", info.Email, "bob@example.com")
	}
	if !strings.HasPrefix(info.PictureURL, "https://platform-lookaside.fbsbx.com/") {
		t.Errorf("PictureURL = %q", info.PictureURL)
	}

	// トークン交換リクエストの検証
	if got := fb.gotTokenForm.Get("code"); got != "auth-code" {
		t.Errorf("token request code = %q, want %q", got, "auth-code")
	}
	if got := fb.gotTokenForm.Get("client_secret"); got != "app-secret" {
		t.Errorf("token request client_secret = %q, want %q", got, "app-secret")
	}
	if got := fb.gotTokenForm.Get("redirect_uri"); got != "http://localhost:3000/auth/facebook/callback" {
		t.Errorf("token request redirect_uri = %q", got)
	}

	// プロフィール取得リクエストの検証
	if fb.gotAuthz != "Bearer access-token-123" {
		t.Errorf("Authorization = %q, want %q", fb.gotAuthz, "Bearer access-token-123")
	}
	if got := fb.gotMeQuery.Get("fields"); got != profileFields {
		t.Errorf("fields = %q, want %q", got, profileFields)
	}
	wantProof := "5105e1d5e29d4dc9e2ca3413d2da04269d0ee6d075c215a27f55e15ec5da6317"
	if got := fb.gotMeQuery.Get("appsecret_proof"); got != wantProof {
		t.Errorf("appsecret_proof = %q, want %q", got, wantProof)
	}
}

func TestFacebookExchangeCode_MissingEmail_ReturnsErrMalformedProfile(t *testing.T) {
	fb := newFakeFacebook(t)
	fb.profileBody = `{"id":"10001","first_name":"Bob","picture":{"data":{"url":"https://example.com/p.jpg"}}}`

	_, err := fb.provider().ExchangeCode(context.Background(), "auth-code")
	if !errors.Is(err, ErrMalformedProfile) {
		t.Errorf("error = %v, want ErrMalformedProfile", err)
	}
}

func TestFacebookExchangeCode_MissingPicture_ReturnsErrMalformedProfile(t *testing.T) {
	fb := newFakeFacebook(t)
	fb.profileBody = `{"id":"10001","first_name":"Bob","email":"bob@example.com"}`

	_, err := fb.provider().ExchangeCode(context.Background(), "auth-code")
	if !errors.Is(err, ErrMalformedProfile) {
		t.Errorf("error = %v, want ErrMalformedProfile", err)
	}
}

func TestFacebookExchangeCode_TokenError_ReturnsError(t *testing.T) {
	fb := newFakeFacebook(t)
	fb.tokenStatus = http.StatusBadRequest

	_, err := fb.provider().ExchangeCode(context.Background(), "bad-code")
	if err == nil {
		t.Fatal("expected error for token exchange failure")
	}
	if errors.Is(err, ErrMalformedProfile) {
		t.Error("token failure must not be reported as malformed profile")
	}
	if fb.gotMeQuery != nil {
		t.Error("profile must not be fetched when token exchange fails")
	}
}

func TestFacebookExchangeCode_GraphError_ReturnsError(t *testing.T) {
	fb := newFakeFacebook(t)
	fb.profileCode = http.StatusInternalServerError
	fb.profileBody = `{"error":{"message":"boom"}}`

	_, err := fb.provider().ExchangeCode(context.Background(), "auth-code")
	if err == nil {
		t.Fatal("expected error for graph failure")
	}
}

func TestWithGraphVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://graph.facebook.com/v3.2/oauth/access_token", "https://graph.facebook.com/v19.0/oauth/access_token"},
		{"https://www.facebook.com/v3.2/dialog/oauth", "https://www.facebook.com/v19.0/dialog/oauth"},
		{"https://graph.facebook.com/oauth", "https://graph.facebook.com/oauth"},
	}
	for _, tt := range tests {
		if got := withGraphVersion(tt.in, "v19.0"); got != tt.want {
			t.Errorf("withGraphVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
