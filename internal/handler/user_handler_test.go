package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/questmap/internal/model"
)

// --- モック定義 ---

type mockUserService struct {
	getFn  func(ctx context.Context, userID string) (*model.User, error)
	listFn func(ctx context.Context) ([]*model.User, error)
}

func (m *mockUserService) Get(ctx context.Context, userID string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError(userID)
}

func (m *mockUserService) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []*model.User{}, nil
}

var _ UserServiceInterface = (*mockUserService)(nil)

func bob() *model.User {
	return &model.User{
		ID:         "3f1e2d4c-0000-4000-8000-000000000001",
		FacebookID: "fb-bob",
		FirstName:  "Bob",
		LastName:   "Builder",
		Email:      "bob@example.com",
		PictureURL: "https://platform-lookaside.fbsbx.com/bob.jpg",
	}
}

// userRouter はchiのURLパラメータ解決を含めてハンドラーを組み立てる。
func userRouter(svc UserServiceInterface) http.Handler {
	h := NewUserHandler(svc)
	r := chi.NewRouter()
	r.Get("/api/getUserInfo", h.GetUserInfo)
	r.Get("/api/getAllUsers", h.ListUsers)
	r.Get("/api/users/{id}", h.GetUser)
	return r
}

// --- テスト ---

func TestUserHandler_GetUserInfo_Success(t *testing.T) {
	svc := &mockUserService{
		getFn: func(_ context.Context, id string) (*model.User, error) {
			if id != bob().ID {
				t.Errorf("id = %q, want %q", id, bob().ID)
			}
			return bob(), nil
		},
	}

	w := httptest.NewRecorder()
	userRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/getUserInfo?id="+bob().ID, nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	for _, key := range []string{"id", "facebook_id", "first_name", "last_name", "email", "picture_url"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response should contain %q", key)
		}
	}
	if body["first_name"] != "Bob" {
		t.Errorf("first_name = %v, want Bob", body["first_name"])
	}
}

func TestUserHandler_GetUser_PathAlias(t *testing.T) {
	svc := &mockUserService{
		getFn: func(_ context.Context, id string) (*model.User, error) {
			if id == bob().ID {
				return bob(), nil
			}
			return nil, model.NewUserNotFoundError(id)
		},
	}

	w := httptest.NewRecorder()
	userRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/"+bob().ID, nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestUserHandler_GetUserInfo_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"idなし", model.NewInvalidRequestError("idが指定されていません"), http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"存在しないユーザー", model.NewUserNotFoundError("x"), http.StatusNotFound, model.ErrCodeUserNotFound},
		{"ディレクトリ障害", model.NewDirectoryUnavailableError(), http.StatusServiceUnavailable, model.ErrCodeDirectoryUnavailable},
		{"想定外のエラー", errors.New("boom"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUserService{
				getFn: func(context.Context, string) (*model.User, error) {
					return nil, tt.err
				},
			}

			w := httptest.NewRecorder()
			userRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/getUserInfo", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			var body apiErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestUserHandler_ListUsers_Success(t *testing.T) {
	svc := &mockUserService{
		listFn: func(context.Context) ([]*model.User, error) {
			other := bob()
			other.ID = "3f1e2d4c-0000-4000-8000-000000000002"
			other.FacebookID = "fb-bobby"
			return []*model.User{bob(), other}, nil
		},
	}

	w := httptest.NewRecorder()
	userRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/getAllUsers", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body []userResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body) != 2 {
		t.Errorf("len = %d, want 2", len(body))
	}
}

func TestUserHandler_ListUsers_EmptyIsArray(t *testing.T) {
	w := httptest.NewRecorder()
	userRouter(&mockUserService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/getAllUsers", nil))

	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want %q", got, "[]\n")
	}
}

func TestUserHandler_ListUsers_DirectoryFailure(t *testing.T) {
	svc := &mockUserService{
		listFn: func(context.Context) ([]*model.User, error) {
			return nil, model.NewDirectoryUnavailableError()
		},
	}

	w := httptest.NewRecorder()
	userRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/getAllUsers", nil))

	if w.Code < 400 {
		t.Errorf("status = %d, want >= 400", w.Code)
	}
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
