package handler

import (
	"net/http"

	"github.com/hitoshi/questmap/internal/leaderboard"
)

// LeaderboardServiceInterface はリーダーボードハンドラーが必要とするサービスインターフェース。
type LeaderboardServiceInterface interface {
	List() []leaderboard.Entry
}

// LeaderboardHandler はリーダーボードのHTTPハンドラー。
type LeaderboardHandler struct {
	service LeaderboardServiceInterface
}

// NewLeaderboardHandler はLeaderboardHandlerを生成する。
func NewLeaderboardHandler(service LeaderboardServiceInterface) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

// List は得点の降順に並んだリーダーボードを返す。
// GET /api/leaderboard
func (h *LeaderboardHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.List())
}
