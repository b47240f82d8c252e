// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizerService はIDプロバイダから受け取ったプロフィール文字列を
// 平文に正規化し、HTMLやスクリプトがディレクトリに保存されることを防ぐ。
// bluemondayのStrictPolicyを使用し、すべてのタグを除去する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxProfileTextLength はプロフィール文字列の最大文字数（users.first_name等の列長）。
const MaxProfileTextLength = 255

// ProfileSanitizerService はプロフィール文字列のサニタイズ機能のインターフェースを定義する。
// ログインコールバックでユーザー情報をディレクトリに渡す前に使用される。
type ProfileSanitizerService interface {
	// SanitizeText はHTMLタグを除去し、前後の空白を取り除いた平文を返す。
	// エンティティはデコードされた状態で返す（JSON応答でのみ使用されるため）。
	// MaxProfileTextLength を超える場合は切り詰める。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// profileSanitizer はProfileSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフであり、共有して使用できる。
type profileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerServiceの新しいインスタンスを生成する。
func NewProfileSanitizer() *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はHTMLタグを除去した平文を返す。
func (s *profileSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}

	// 1. 全タグを除去（script/style は中身ごと除去される）
	stripped := s.policy.Sanitize(raw)

	// 2. bluemondayがエスケープしたエンティティを戻す
	text := strings.TrimSpace(html.UnescapeString(stripped))

	// 3. 列長を超える場合はルーン単位で切り詰める
	if utf8.RuneCountInString(text) > MaxProfileTextLength {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:MaxProfileTextLength]))
	}

	return text
}
