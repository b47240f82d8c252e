// Package config はアプリケーション設定の読み込みと検証を行う。
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// 永続化ドライバー
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DefaultConfigFile はCONFIG_FILE未指定時に探す設定ファイル。
const DefaultConfigFile = "config.yaml"

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string `koanf:"server_port" validate:"required,numeric"`
	BaseURL    string `koanf:"base_url" validate:"required,url"`

	// Facebook OAuth
	FacebookClientID     string `koanf:"facebook_client_id" validate:"required"`
	FacebookClientSecret string `koanf:"facebook_client_secret" validate:"required"`
	FacebookGraphVersion string `koanf:"facebook_graph_version" validate:"required"`

	// Persistence
	DirectoryDriver string `koanf:"directory_driver" validate:"oneof=postgres memory"`
	SessionStore    string `koanf:"session_store" validate:"oneof=postgres memory"`
	DatabaseURL     string `koanf:"database_url"`

	// Session
	SessionMaxAge          int           `koanf:"session_max_age" validate:"gt=0"`
	SessionCleanupInterval time.Duration `koanf:"session_cleanup_interval" validate:"gt=0"`

	// Timeouts
	DirectoryTimeout time.Duration `koanf:"directory_timeout" validate:"gt=0"`
	ProviderTimeout  time.Duration `koanf:"provider_timeout" validate:"gt=0"`

	// Static files
	DistDir   string `koanf:"dist_dir" validate:"required"`
	ClientDir string `koanf:"client_dir" validate:"required"`

	// Rate Limit (req/min)
	RateLimitGeneral int `koanf:"rate_limit_general" validate:"gt=0"`
	RateLimitAuth    int `koanf:"rate_limit_auth" validate:"gt=0"`

	// Logging
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// Cookie
	CookieDomain string `koanf:"cookie_domain"`
	CookieSecure bool   `koanf:"-"`

	// CORS
	CORSAllowedOrigin string `koanf:"cors_allowed_origin"`
}

// defaults は未指定キーの既定値。
var defaults = map[string]any{
	"server_port":              "3000",
	"facebook_graph_version":   "v19.0",
	"directory_driver":         DriverPostgres,
	"session_store":            DriverMemory,
	"session_max_age":          86400,
	"session_cleanup_interval": "1h",
	"directory_timeout":        "5s",
	"provider_timeout":         "10s",
	"dist_dir":                 "dist",
	"client_dir":               "src",
	"rate_limit_general":       120,
	"rate_limit_auth":          20,
	"log_level":                "info",
	"cookie_domain":            "",
	"cors_allowed_origin":      "",
}

// knownKeys は環境変数から取り込むキーの集合。Config構造体のkoanfタグから生成する。
var knownKeys = func() map[string]struct{} {
	keys := make(map[string]struct{})
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("koanf"); tag != "" && tag != "-" {
			keys[tag] = struct{}{}
		}
	}
	return keys
}()

// Load は既定値、設定ファイル、環境変数の順に設定を重ねて読み込み、検証する。
// 環境変数が最も優先される。必須項目が欠けている場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	k := koanf.New(".")

	// 1. 既定値
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	// 2. 設定ファイル（CONFIG_FILE未指定でconfig.yamlが無い場合はスキップ）
	path, explicit := os.LookupEnv("CONFIG_FILE")
	if !explicit || path == "" {
		path = DefaultConfigFile
		explicit = false
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s not found: %w", path, err)
	}

	// 3. 環境変数
	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(key)
			if _, ok := knownKeys[key]; !ok {
				return "", nil
			}
			return key, value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UsesPostgres はディレクトリまたはセッションストアのいずれかがPostgreSQLを使うかを返す。
func (c *Config) UsesPostgres() bool {
	return c.DirectoryDriver == DriverPostgres || c.SessionStore == DriverPostgres
}

// FacebookRedirectURL はFacebookに登録するOAuthコールバックURLを返す。
func (c *Config) FacebookRedirectURL() string {
	return c.BaseURL + "/auth/facebook/callback"
}

// Validate は設定値を検証する。
// エラーメッセージには環境変数名を列挙する。
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.ToUpper(f.Tag.Get("koanf"))
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cfg := sl.Current().Interface().(Config)
		if cfg.UsesPostgres() && cfg.DatabaseURL == "" {
			sl.ReportError(cfg.DatabaseURL, "DATABASE_URL", "DatabaseURL", "required_with_postgres", "")
		}
	}, Config{})

	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	invalid := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		invalid = append(invalid, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, ", "))
}
