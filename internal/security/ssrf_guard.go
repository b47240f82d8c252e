package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はIDプロバイダとの通信と、プロバイダから受け取った
// プロフィール画像URLの安全性を担保する。
type SSRFGuardService interface {
	// NewSafeClient はhttps(443)の公開ホストにのみ接続できるHTTPクライアントを生成する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はプロフィール画像URLをディレクトリに保存してよいかを検証する。
	ValidateURL(rawURL string) error
}

// maxPictureURLLength はディレクトリに保存するプロフィール画像URLの最大長。
const maxPictureURLLength = 2048

// ValidateURLが返すエラー
var (
	ErrURLNotHTTPS     = errors.New("picture URL must use https")
	ErrURLNotPublic    = errors.New("picture URL must point to a public host")
	ErrURLCredentials  = errors.New("picture URL must not carry credentials")
	ErrURLPortNotHTTPS = errors.New("picture URL must use the default https port")
	ErrURLTooLong      = errors.New("picture URL is too long")
)

// blockedPrefixes は公開ホストとみなさないアドレス範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),      // カレントネットワーク
	netip.MustParsePrefix("10.0.0.0/8"),     // RFC 1918
	netip.MustParsePrefix("100.64.0.0/10"),  // CGNAT
	netip.MustParsePrefix("127.0.0.0/8"),    // ループバック
	netip.MustParsePrefix("169.254.0.0/16"), // リンクローカル（メタデータIPを含む）
	netip.MustParsePrefix("172.16.0.0/12"),  // RFC 1918
	netip.MustParsePrefix("192.168.0.0/16"), // RFC 1918
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// blockedHostSuffixes は内部名前解決に使われるホスト名の接尾辞。
var blockedHostSuffixes = []string{".localhost", ".internal", ".local"}

// ssrfGuard はSSRFGuardServiceの実装。
type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを生成する。
// safeurlはDialerのControlフックでDNS解決後のIPアドレスを検証するため、
// DNS再バインディングによるプライベートアドレスへの接続も拒否される。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はDNS解決を伴わない静的な検証を行う。
// https以外のスキーム、認証情報付きURL、443以外のポート、
// プライベートアドレスや内部ホスト名を拒否する。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("empty URL")
	}
	if len(rawURL) > maxPictureURLLength {
		return ErrURLTooLong
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("%w: %q", ErrURLNotHTTPS, parsed.Scheme)
	}
	if parsed.User != nil {
		return ErrURLCredentials
	}
	if port := parsed.Port(); port != "" && port != "443" {
		return fmt.Errorf("%w: %s", ErrURLPortNotHTTPS, port)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrURLNotPublic)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("%w: %s", ErrURLNotPublic, addr)
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("%w: %s", ErrURLNotPublic, host)
	}
	return nil
}

// isBlockedAddr はIPv4射影IPv6を展開したうえでブロック対象範囲と照合する。
func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return true
	}
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if host == "localhost" || !strings.Contains(host, ".") {
		return true
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}
