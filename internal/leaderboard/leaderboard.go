// Package leaderboard は固定のリーダーボードを提供する。
package leaderboard

import "sort"

// Entry はリーダーボードの1行。
type Entry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// entries は登録順の固定データ。
var entries = []Entry{
	{Name: "Bob", Score: 1},
	{Name: "Bobby", Score: 2},
	{Name: "Rob", Score: 10},
	{Name: "Robert", Score: 12},
	{Name: "Bobbina", Score: 14},
	{Name: "Bobber", Score: 119},
	{Name: "Billy Bob", Score: 205},
	{Name: "Bob the Builder", Score: 1000},
}

// Service はリーダーボードの参照を提供する。
type Service struct {
	sorted []Entry
}

// NewService は得点の降順に並べたリーダーボードを保持するServiceを生成する。
func NewService() *Service {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	return &Service{sorted: sorted}
}

// List は得点の降順でエントリを返す。呼び出し側が変更しても内部状態には影響しない。
func (s *Service) List() []Entry {
	out := make([]Entry, len(s.sorted))
	copy(out, s.sorted)
	return out
}
