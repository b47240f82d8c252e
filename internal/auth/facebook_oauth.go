package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

const (
	defaultGraphVersion = "v19.0"
	defaultGraphBaseURL = "https://graph.facebook.com"

	// profileFields はGraph APIの/meで取得するフィールド。
	profileFields = "id,first_name,last_name,email,picture.type(large)"

	// maxProfileResponseSize はプロフィール応答の最大サイズ。
	maxProfileResponseSize = 1 << 20
)

// FacebookOAuthConfig はFacebook OAuthプロバイダーの設定。
type FacebookOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	GraphVersion string

	// HTTPClient はトークン交換とプロフィール取得に使うクライアント。
	// nilの場合はhttp.DefaultClientを使用する。
	HTTPClient *http.Client

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
	GraphURL string
}

// FacebookOAuthProvider はFacebook OAuth 2.0による認証を提供する。
type FacebookOAuthProvider struct {
	oauth        *oauth2.Config
	clientSecret string
	graphURL     string
	client       *http.Client
}

// NewFacebookOAuthProvider はFacebookOAuthProviderを生成する。
func NewFacebookOAuthProvider(config FacebookOAuthConfig) *FacebookOAuthProvider {
	version := config.GraphVersion
	if version == "" {
		version = defaultGraphVersion
	}

	endpoint := facebook.Endpoint
	endpoint.AuthURL = withGraphVersion(endpoint.AuthURL, version)
	endpoint.TokenURL = withGraphVersion(endpoint.TokenURL, version)
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	graphURL := config.GraphURL
	if graphURL == "" {
		graphURL = defaultGraphBaseURL + "/" + version
	}

	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &FacebookOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"email", "public_profile"},
		},
		clientSecret: config.ClientSecret,
		graphURL:     strings.TrimRight(graphURL, "/"),
		client:       client,
	}
}

// GetLoginURL はFacebookの認証URLを生成する。
// 一度拒否された権限も再要求するため auth_type=rerequest を付与する。
func (p *FacebookOAuthProvider) GetLoginURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("auth_type", "rerequest"))
}

// facebookProfile はGraph APIの/meのレスポンス。
type facebookProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Picture   struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、プロフィールを取得する。
func (p *FacebookOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	// 1. 認可コードをアクセストークンに交換
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. アクセストークンでプロフィールを取得
	profile, err := p.fetchProfile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	// 3. 必須項目の検証
	if profile.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedProfile)
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("%w: missing email", ErrMalformedProfile)
	}
	if profile.Picture.Data.URL == "" {
		return nil, fmt.Errorf("%w: missing picture", ErrMalformedProfile)
	}

	return &OAuthUserInfo{
		ProviderUserID: profile.ID,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		Email:          profile.Email,
		PictureURL:     profile.Picture.Data.URL,
	}, nil
}

// fetchProfile はGraph APIの/meを呼び出す。
// アクセストークンの正当性を示すため appsecret_proof を付与する。
func (p *FacebookOAuthProvider) fetchProfile(ctx context.Context, token *oauth2.Token) (*facebookProfile, error) {
	params := url.Values{
		"fields":          {profileFields},
		"appsecret_proof": {appSecretProof(p.clientSecret, token.AccessToken)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphURL+"/me?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}

	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var profile facebookProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}

	return &profile, nil
}

// withGraphVersion はエンドポイントURLのバージョン部分（先頭のパスセグメント）を差し替える。
func withGraphVersion(rawURL, version string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	segments := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(segments) != 2 || !strings.HasPrefix(segments[0], "v") {
		return rawURL
	}
	u.Path = "/" + version + "/" + segments[1]
	return u.String()
}

// appSecretProof はアクセストークンをアプリシークレットで署名したHMAC-SHA256の16進文字列を返す。
func appSecretProof(clientSecret, accessToken string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(accessToken))
	return hex.EncodeToString(mac.Sum(nil))
}

// compile-time interface check
var _ OAuthProvider = (*FacebookOAuthProvider)(nil)
