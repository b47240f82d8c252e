package handler

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hitoshi/questmap/internal/model"
)

// StaticConfig は静的ファイル配信の設定。
type StaticConfig struct {
	DistDir   string // ビルド済みSPA（index.htmlを含む）
	ClientDir string // スタイルシートなどクライアントのソース
}

// StaticHandler はSPAの静的ファイルとフォールバックを配信する。
type StaticHandler struct {
	config StaticConfig
	dist   fs.FS
	files  http.Handler
}

// NewStaticHandler はStaticHandlerを生成する。
func NewStaticHandler(config StaticConfig) *StaticHandler {
	dist := os.DirFS(config.DistDir)
	return &StaticHandler{
		config: config,
		dist:   dist,
		files:  http.FileServerFS(dist),
	}
}

// Stylesheet はCLIENT_DIR/styles配下の指定ファイルを返すハンドラーを生成する。
// GET /src/styles/styles.css, GET /src/styles/leaflet.css
func (h *StaticHandler) Stylesheet(name string) http.HandlerFunc {
	file := filepath.Join(h.config.ClientDir, "styles", name)
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, file)
	}
}

// Fallback はDIST_DIRに存在するファイルを返し、それ以外はindex.htmlを返す。
// クライアント側ルーティング（/login など）はここで処理される。
// 存在しない/api/・/auth/配下のパスにはJSONの404を返す。
func (h *StaticHandler) Fallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewNotFoundError(r.URL.Path))
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/auth/") {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewNotFoundError(r.URL.Path))
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name != "" {
		if info, err := fs.Stat(h.dist, name); err == nil && !info.IsDir() {
			h.files.ServeHTTP(w, r)
			return
		}
	}

	http.ServeFileFS(w, r, h.dist, "index.html")
}
