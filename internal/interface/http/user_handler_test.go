package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cadot-io/user-api/internal/apperrors"
	userapp "github.com/cadot-io/user-api/internal/application"
	"github.com/cadot-io/user-api/internal/domain/entity"
	handlers "github.com/cadot-io/user-api/internal/interface/http"
	"github.com/cadot-io/user-api/internal/router"
	"github.com/cadot-io/user-api/internal/router/modules"
	"github.com/cadot-io/user-api/pkg/helpers"
	"github.com/cadot-io/user-api/pkg/validation"
)

var initValidation sync.Once

// fakeRepo mirrors the unique-constraint behavior of the postgres repository.
type fakeRepo struct {
	mu   sync.Mutex
	seq  int64
	rows map[int64]*entity.User
}

func newFakeRepo() *fakeRepo { return &fakeRepo{rows: map[int64]*entity.User{}} }

func (f *fakeRepo) Create(_ context.Context, u *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.Email == u.Email {
			return apperrors.ErrEmailTaken
		}
		if row.Username == u.Username {
			return apperrors.ErrUsernameTaken
		}
	}
	f.seq++
	u.ID = f.seq
	u.CreatedAt = time.Now()
	cp := *u
	f.rows[u.ID] = &cp
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id int64) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, apperrors.ErrUserNotFound
}

func (f *fakeRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	return f.find(func(u *entity.User) bool { return u.Email == email })
}

func (f *fakeRepo) GetByUsername(_ context.Context, username string) (*entity.User, error) {
	return f.find(func(u *entity.User) bool { return u.Username == username })
}

func (f *fakeRepo) find(match func(*entity.User) bool) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if match(row) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (f *fakeRepo) Update(_ context.Context, u *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[u.ID]; !ok {
		return apperrors.ErrUserNotFound
	}
	now := time.Now()
	u.UpdatedAt = &now
	cp := *u
	f.rows[u.ID] = &cp
	return nil
}

func (f *fakeRepo) ListPage(_ context.Context, offset, limit int) ([]*entity.User, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.User
	for id := int64(1); id <= f.seq; id++ {
		row, ok := f.rows[id]
		if !ok {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		if len(out) == limit {
			break
		}
		cp := *row
		out = append(out, &cp)
	}
	return out, int64(len(f.rows)), nil
}

func newTestAPI(t *testing.T) (*gin.Engine, *fakeRepo, *userapp.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	initValidation.Do(validation.Init)

	repo := newFakeRepo()
	logger := helpers.NewLogger("user-api-test", "test")
	svc := userapp.NewService(repo,
		helpers.NewPasswordHasher(bcrypt.MinCost),
		helpers.NewJWTManager("handler-secret", time.Hour),
		logger,
	)
	h := handlers.NewUserHandler(svc, logger)

	engine := gin.New()
	reg := router.NewRegistry(engine)
	reg.Add(modules.NewUserModule(h, repo, svc.JWT))
	reg.RegisterAll()
	return engine, repo, svc
}

func doJSON(r *gin.Engine, method, path, token string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewBuffer(b)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func responseKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeEnvelope(t, w)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, "response has no error body: %s", w.Body.String())
	kind, _ := errBody["kind"].(string)
	return kind
}

func registerUser(t *testing.T, r *gin.Engine, email, username string) {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/v1/users/", "", gin.H{
		"email":    email,
		"username": username,
		"password": "pw1234567",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func loginToken(t *testing.T, r *gin.Engine, identifier string) string {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/v1/login", "", gin.H{
		"identifier": identifier,
		"password":   "pw1234567",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeEnvelope(t, w)
	data := body["data"].(map[string]any)
	token, _ := data["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterEndpoint(t *testing.T) {
	r, _, _ := newTestAPI(t)

	w := doJSON(r, http.MethodPost, "/api/v1/users/", "", gin.H{
		"email":     "ada@x.com",
		"username":  "ada",
		"password":  "pw1234567",
		"full_name": "Ada Lovelace",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// The password hash never appears in API output.
	require.NotContains(t, w.Body.String(), "hashed_password")
	require.NotContains(t, w.Body.String(), "pw1234567")

	body := decodeEnvelope(t, w)
	data := body["data"].(map[string]any)
	require.Equal(t, "ada@x.com", data["email"])
	require.Equal(t, true, data["is_active"])
	require.Equal(t, false, data["is_superuser"])
}

func TestRegisterValidation(t *testing.T) {
	r, _, _ := newTestAPI(t)

	w := doJSON(r, http.MethodPost, "/api/v1/users/", "", gin.H{
		"email":    "not-an-email",
		"username": "ab", // below minimum length
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, string(apperrors.KindValidation), responseKind(t, w))
}

func TestRegisterConflicts(t *testing.T) {
	r, _, _ := newTestAPI(t)
	registerUser(t, r, "ada@x.com", "ada")

	w := doJSON(r, http.MethodPost, "/api/v1/users/", "", gin.H{
		"email": "ada@x.com", "username": "other", "password": "pw1234567",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, string(apperrors.KindConflict), responseKind(t, w))
	require.Contains(t, w.Body.String(), "email")

	w = doJSON(r, http.MethodPost, "/api/v1/users/", "", gin.H{
		"email": "other@x.com", "username": "ada", "password": "pw1234567",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "username")
}

func TestLoginEndpoints(t *testing.T) {
	r, _, _ := newTestAPI(t)
	registerUser(t, r, "ada@x.com", "ada")

	// JSON login works with either identifier.
	for _, id := range []string{"ada@x.com", "ada"} {
		token := loginToken(t, r, id)
		require.NotEmpty(t, token)
	}

	// OAuth2-style form login.
	form := url.Values{"username": {"ada@x.com"}, "password": {"pw1234567"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login/access-token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"token_type":"bearer"`)
}

func TestLoginBadCredentials(t *testing.T) {
	r, _, _ := newTestAPI(t)
	registerUser(t, r, "ada@x.com", "ada")

	unknown := doJSON(r, http.MethodPost, "/api/v1/login", "", gin.H{
		"identifier": "nobody@x.com", "password": "pw1234567",
	})
	wrongPw := doJSON(r, http.MethodPost, "/api/v1/login", "", gin.H{
		"identifier": "ada@x.com", "password": "bad-password",
	})
	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t, http.StatusUnauthorized, wrongPw.Code)
	// Identical payloads; no account-existence oracle.
	require.Equal(t, responseKind(t, unknown), responseKind(t, wrongPw))

	// Rejections carry the challenge header; successes do not.
	require.Equal(t, "Bearer", wrongPw.Header().Get("WWW-Authenticate"))
	ok := doJSON(r, http.MethodPost, "/api/v1/login", "", gin.H{
		"identifier": "ada@x.com", "password": "pw1234567",
	})
	require.Equal(t, http.StatusOK, ok.Code)
	require.Empty(t, ok.Header().Get("WWW-Authenticate"))
}

func TestLoginInactiveAccount(t *testing.T) {
	r, repo, _ := newTestAPI(t)
	registerUser(t, r, "ada@x.com", "ada")

	u, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	u.IsActive = false
	require.NoError(t, repo.Update(context.Background(), u))

	w := doJSON(r, http.MethodPost, "/api/v1/login", "", gin.H{
		"identifier": "ada@x.com", "password": "pw1234567",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, string(apperrors.KindInactiveAccount), responseKind(t, w))
}

func TestMeAndUpdateMe(t *testing.T) {
	r, _, _ := newTestAPI(t)
	registerUser(t, r, "ada@x.com", "ada")
	token := loginToken(t, r, "ada")

	w := doJSON(r, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"username":"ada"`)

	// Flag fields in the payload are ignored by the binding.
	w = doJSON(r, http.MethodPut, "/api/v1/users/me", token, gin.H{
		"full_name":    "Ada Lovelace",
		"is_superuser": true,
		"is_active":    false,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeEnvelope(t, w)
	data := body["data"].(map[string]any)
	require.Equal(t, "Ada Lovelace", data["full_name"])
	require.Equal(t, true, data["is_active"])
	require.Equal(t, false, data["is_superuser"])
}

func TestUpdatePasswordEndpoint(t *testing.T) {
	r, _, _ := newTestAPI(t)
	registerUser(t, r, "ada@x.com", "ada")
	token := loginToken(t, r, "ada")

	w := doJSON(r, http.MethodPut, "/api/v1/users/me/password", token, gin.H{
		"old_password": "wrong-old-pw", "new_password": "newpassword1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, string(apperrors.KindValidation), responseKind(t, w))

	w = doJSON(r, http.MethodPut, "/api/v1/users/me/password", token, gin.H{
		"old_password": "pw1234567", "new_password": "newpassword1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Old password no longer authenticates.
	bad := doJSON(r, http.MethodPost, "/api/v1/login", "", gin.H{
		"identifier": "ada", "password": "pw1234567",
	})
	require.Equal(t, http.StatusUnauthorized, bad.Code)
}

func TestGetByIDEndpoint(t *testing.T) {
	r, _, _ := newTestAPI(t)
	registerUser(t, r, "ada@x.com", "ada")
	registerUser(t, r, "bob@x.com", "bob")
	token := loginToken(t, r, "ada")

	// Any authenticated user can read another profile.
	w := doJSON(r, http.MethodGet, "/api/v1/users/2", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"username":"bob"`)

	w = doJSON(r, http.MethodGet, "/api/v1/users/99", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, string(apperrors.KindNotFound), responseKind(t, w))

	w = doJSON(r, http.MethodGet, "/api/v1/users/2", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListRequiresSuperuser(t *testing.T) {
	r, repo, _ := newTestAPI(t)
	registerUser(t, r, "ada@x.com", "ada")
	token := loginToken(t, r, "ada")

	w := doJSON(r, http.MethodGet, "/api/v1/users/", token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, string(apperrors.KindAuthorization), responseKind(t, w))

	u, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	u.IsSuperuser = true
	require.NoError(t, repo.Update(context.Background(), u))

	for i := 2; i <= 5; i++ {
		registerUser(t, r, fmt.Sprintf("u%d@x.com", i), fmt.Sprintf("user%d", i))
	}

	w = doJSON(r, http.MethodGet, "/api/v1/users/?page=2&per_page=3", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeEnvelope(t, w)
	meta := body["meta"].(map[string]any)
	require.EqualValues(t, 5, meta["total"])
	require.Len(t, body["data"].([]any), 2)
}

func TestListMetaEchoesClampedPagination(t *testing.T) {
	r, repo, _ := newTestAPI(t)
	registerUser(t, r, "root@x.com", "root")

	u, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	u.IsSuperuser = true
	require.NoError(t, repo.Update(context.Background(), u))
	token := loginToken(t, r, "root")

	// Out-of-range values are clamped, and meta reports the page actually
	// served rather than the raw query input.
	w := doJSON(r, http.MethodGet, "/api/v1/users/?page=0&per_page=1000", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	meta := decodeEnvelope(t, w)["meta"].(map[string]any)
	require.EqualValues(t, 1, meta["page"])
	require.EqualValues(t, 20, meta["per_page"])
}

func TestSetStatusEndpoint(t *testing.T) {
	r, repo, _ := newTestAPI(t)
	registerUser(t, r, "root@x.com", "root")
	registerUser(t, r, "ada@x.com", "ada")

	u, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	u.IsSuperuser = true
	require.NoError(t, repo.Update(context.Background(), u))
	token := loginToken(t, r, "root")

	w := doJSON(r, http.MethodPatch, "/api/v1/users/2/status", token, gin.H{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The deactivated account can no longer log in.
	bad := doJSON(r, http.MethodPost, "/api/v1/login", "", gin.H{
		"identifier": "ada", "password": "pw1234567",
	})
	require.Equal(t, http.StatusForbidden, bad.Code)
	require.Equal(t, string(apperrors.KindInactiveAccount), responseKind(t, bad))

	w = doJSON(r, http.MethodPatch, "/api/v1/users/2/status", token, gin.H{"is_active": true})
	require.Equal(t, http.StatusOK, w.Code)
	token2 := loginToken(t, r, "ada")
	require.NotEmpty(t, token2)
}
