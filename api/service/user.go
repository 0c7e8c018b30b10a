package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"mediaDownloader/api/auth"
	"mediaDownloader/api/dto"
	"mediaDownloader/api/models"
	"mediaDownloader/api/repository"
	"mediaDownloader/api/validation"
)

type UserService struct {
	repo   repository.UserRepository
	issuer *auth.Issuer
	logger *zap.Logger
}

func NewUserService(repo repository.UserRepository, issuer *auth.Issuer, logger *zap.Logger) *UserService {
	return &UserService{repo: repo, issuer: issuer, logger: logger}
}

func (s *UserService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, auth.ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		return nil, err
	}

	token, err := s.issuer.Issue(auth.Principal{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	})
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{Token: token, Username: user.Username, IsAdmin: user.IsAdmin}, nil
}

func (s *UserService) Create(ctx context.Context, req *dto.CreateUserRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if err := validation.Required("username", username, "password", req.Password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{Username: username, PasswordHash: hash, IsAdmin: req.IsAdmin}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User created",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Bool("is_admin", user.IsAdmin),
	)
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *UserService) List(ctx context.Context) ([]*models.User, error) {
	return s.repo.ListUsers(ctx)
}

// Delete removes a user. Their download history is kept.
func (s *UserService) Delete(ctx context.Context, callerID, id int64) error {
	if callerID == id {
		return ErrSelfDelete
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}

	s.logger.Info("User deleted", zap.Int64("user_id", id), zap.Int64("by", callerID))
	return nil
}

// EnsureAdmin creates the bootstrap admin account unless a user with that
// name already exists.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.repo.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	_, err = s.Create(ctx, &dto.CreateUserRequest{Username: username, Password: password, IsAdmin: true})
	if errors.Is(err, repository.ErrUsernameTaken) {
		return nil
	}
	return err
}
