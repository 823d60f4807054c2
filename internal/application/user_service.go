package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/cadot-io/user-api/internal/apperrors"
	"github.com/cadot-io/user-api/internal/domain/entity"
	repo "github.com/cadot-io/user-api/internal/domain/repository"
	"github.com/cadot-io/user-api/pkg/helpers"
	"github.com/cadot-io/user-api/pkg/mailer"
)

// Service implements the user account operations: registration, credential
// authentication, profile reads and updates, password changes, listing, and
// the admin activation toggle. Redis, GCS, ES, and the mail publisher are
// optional; a nil client skips the corresponding side effect.
type Service struct {
	Repo         repo.UserRepository
	Hasher       *helpers.PasswordHasher
	JWT          *helpers.JWTManager
	Redis        *redis.Client
	CacheTTL     time.Duration
	GCS          *storage.Client
	GCSBucket    string
	ES           *elasticsearch.Client
	ESUsersIndex string
	Pub          *helpers.RabbitPublisher
	AppName      string
	Logger       *logrus.Logger
}

func NewService(repo repo.UserRepository, hasher *helpers.PasswordHasher, jwt *helpers.JWTManager, logger *logrus.Logger) *Service {
	return &Service{
		Repo:     repo,
		Hasher:   hasher,
		JWT:      jwt,
		Logger:   logger,
		CacheTTL: 5 * time.Minute,
	}
}

func profileKey(id int64) string {
	return fmt.Sprintf("user:profile:%d", id)
}

// RegisterInput is the data accepted at registration. Accounts always start
// active and non-superuser; flags cannot be set through registration.
type RegisterInput struct {
	Email       string
	Username    string
	Password    string
	FullName    string
	PhoneNumber string
	AvatarURL   string
}

// Register hashes the password and persists the new account, relying on the
// store's unique constraints to reject duplicate email or username.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		Email:          in.Email,
		Username:       in.Username,
		FullName:       in.FullName,
		PhoneNumber:    in.PhoneNumber,
		AvatarURL:      in.AvatarURL,
		HashedPassword: hash,
		IsActive:       true,
		IsSuperuser:    false,
	}
	if err := s.Repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{"user_id": u.ID, "username": u.Username}).Info("user registered")

	_ = s.indexUser(ctx, u)
	s.enqueueWelcomeEmail(ctx, u)
	return u, nil
}

// Authenticate looks up by email or username and verifies the password.
// Unknown identifier and wrong password fail identically so callers learn
// nothing about account existence; an inactive account fails distinctly.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*entity.User, error) {
	u, err := s.Repo.GetByEmail(ctx, identifier)
	if err != nil {
		if !errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, err
		}
		u, err = s.Repo.GetByUsername(ctx, identifier)
		if err != nil {
			if errors.Is(err, apperrors.ErrUserNotFound) {
				return nil, apperrors.ErrInvalidCredentials
			}
			return nil, err
		}
	}
	if !s.Hasher.Verify(password, u.HashedPassword) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, apperrors.ErrInactiveUser
	}
	return u, nil
}

// LoginResult is what a successful login returns.
type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	User        *entity.User
}

// Login authenticates and issues a bearer token for the account.
func (s *Service) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	u, err := s.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	token, exp, err := s.JWT.Issue(u.ID)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Error("issue access token failed")
		return nil, err
	}
	return &LoginResult{AccessToken: token, TokenType: "bearer", ExpiresAt: exp, User: u}, nil
}

// GetByID loads a user, serving from the redis profile cache when possible.
func (s *Service) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	if s.Redis != nil {
		var cached entity.User
		if ok, err := helpers.CacheGetJSON(ctx, s.Redis, profileKey(id), &cached); err == nil && ok {
			return &cached, nil
		}
	}
	u, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Redis != nil {
		if err := helpers.CacheSetJSON(ctx, s.Redis, profileKey(id), u, s.CacheTTL); err != nil {
			s.Logger.WithError(err).WithField("user_id", id).Warn("profile cache set failed")
		}
	}
	return u, nil
}

// UpdateProfileInput carries the self-service mutable fields. Empty strings
// mean "leave unchanged"; is_active and is_superuser are deliberately not
// representable here.
type UpdateProfileInput struct {
	Email       string
	Username    string
	FullName    string
	PhoneNumber string
	AvatarURL   string
}

// UpdateProfile applies the caller's own profile changes.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (*entity.User, error) {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Email != "" {
		u.Email = in.Email
	}
	if in.Username != "" {
		u.Username = in.Username
	}
	if in.FullName != "" {
		u.FullName = in.FullName
	}
	if in.PhoneNumber != "" {
		u.PhoneNumber = in.PhoneNumber
	}
	if in.AvatarURL != "" {
		u.AvatarURL = in.AvatarURL
	}
	if err := s.Repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.invalidateProfile(ctx, u.ID)
	_ = s.indexUser(ctx, u)
	return u, nil
}

// UpdatePassword verifies the old password before re-hashing the new one.
func (s *Service) UpdatePassword(ctx context.Context, userID int64, oldPassword, newPassword string) (*entity.User, error) {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !s.Hasher.Verify(oldPassword, u.HashedPassword) {
		return nil, apperrors.ErrOldPasswordWrong
	}
	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	u.HashedPassword = hash
	if err := s.Repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.invalidateProfile(ctx, u.ID)
	s.Logger.WithField("user_id", u.ID).Info("password updated")
	return u, nil
}

// NormalizePage clamps pagination arguments to the served range: pages are
// 1-based, per-page sizes outside 1..100 fall back to 20. Callers reporting
// pagination back to clients must echo these values, not the raw input.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

// ListPage returns one page of users plus the total count. Page numbers
// start at 1.
func (s *Service) ListPage(ctx context.Context, page, perPage int) ([]*entity.User, int64, error) {
	page, perPage = NormalizePage(page, perPage)
	return s.Repo.ListPage(ctx, (page-1)*perPage, perPage)
}

// SetActive toggles the account activation flag (superuser-gated at the
// HTTP layer).
func (s *Service) SetActive(ctx context.Context, userID int64, active bool) (*entity.User, error) {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.IsActive = active
	if err := s.Repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.invalidateProfile(ctx, u.ID)
	_ = s.indexUser(ctx, u)
	s.Logger.WithFields(logrus.Fields{"user_id": u.ID, "is_active": active}).Info("activation flag changed")
	return u, nil
}

// UploadAvatar streams the image to GCS and stores the resulting URL.
func (s *Service) UploadAvatar(ctx context.Context, userID int64, r io.Reader, filename, contentType string) (*entity.User, error) {
	if s.GCS == nil || s.GCSBucket == "" {
		return nil, apperrors.New(apperrors.KindInternal, "avatar storage not configured")
	}
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	objectPath := filepath.ToSlash(filepath.Join("avatars", fmt.Sprintf("%d", userID), uuid.NewString()+ext))
	url, err := helpers.UploadObject(ctx, s.GCS, s.GCSBucket, objectPath, contentType, r)
	if err != nil {
		return nil, err
	}
	u.AvatarURL = url
	if err := s.Repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.invalidateProfile(ctx, u.ID)
	_ = s.indexUser(ctx, u)
	return u, nil
}

// SearchUsers performs a multi_match query on email, username, and full
// name in the users index.
func (s *Service) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.ES == nil || s.ESUsersIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email^2", "username^2", "full_name"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(
		s.ES.Search.WithContext(c),
		s.ES.Search.WithIndex(s.ESUsersIndex),
		s.ES.Search.WithBody(strings.NewReader(string(b))),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func (s *Service) invalidateProfile(ctx context.Context, id int64) {
	if s.Redis == nil {
		return
	}
	if err := helpers.CacheDel(ctx, s.Redis, profileKey(id)); err != nil {
		s.Logger.WithError(err).WithField("user_id", id).Warn("profile cache invalidation failed")
	}
}

func (s *Service) indexUser(ctx context.Context, u *entity.User) error {
	if s.ES == nil || s.ESUsersIndex == "" {
		return nil
	}
	doc := map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"username":   u.Username,
		"full_name":  u.FullName,
		"avatar_url": u.AvatarURL,
		"is_active":  u.IsActive,
		"created_at": u.CreatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{
		Index:      s.ESUsersIndex,
		DocumentID: fmt.Sprintf("%d", u.ID),
		Body:       strings.NewReader(string(b)),
		Refresh:    "false",
	}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("es index failed")
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		s.Logger.WithFields(logrus.Fields{"status": res.Status(), "user_id": u.ID}).Warn("es index response error")
	}
	return nil
}

func (s *Service) enqueueWelcomeEmail(ctx context.Context, u *entity.User) {
	if s.Pub == nil {
		return
	}
	job := mailer.EmailJob{
		To:       u.Email,
		Template: mailer.TemplateWelcome,
		Data: map[string]any{
			"Username": u.Username,
			"Email":    u.Email,
			"AppName":  s.AppName,
		},
	}
	if err := s.Pub.PublishJSON(ctx, job); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("welcome email enqueue failed")
	}
}
