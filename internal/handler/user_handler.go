package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/questmap/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
}

// userResponse はユーザー情報のレスポンス。
type userResponse struct {
	ID         string    `json:"id"`
	FacebookID string    `json:"facebook_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	PictureURL string    `json:"picture_url"`
	CreatedAt  time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:         u.ID,
		FacebookID: u.FacebookID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Email:      u.Email,
		PictureURL: u.PictureURL,
		CreatedAt:  u.CreatedAt,
	}
}

// UserHandler はユーザーディレクトリ参照のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// GetUserInfo はクエリパラメータで指定されたユーザーを返す。
// GET /api/getUserInfo?id={id}
func (h *UserHandler) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	h.writeUser(w, r, r.URL.Query().Get("id"))
}

// GetUser はパスで指定されたユーザーを返す。
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	h.writeUser(w, r, chi.URLParam(r, "id"))
}

func (h *UserHandler) writeUser(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ListUsers は全ユーザーを返す。
// GET /api/getAllUsers
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]userResponse, len(users))
	for i, u := range users {
		resp[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}
