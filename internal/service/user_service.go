// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"smartdoc-go/internal/model"
	"smartdoc-go/internal/repository"
	"smartdoc-go/pkg/hash"
	"smartdoc-go/pkg/log"
	"smartdoc-go/pkg/token"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const minPasswordChars = 6

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(username, password string) (*model.User, error)
	Login(username, password string) (accessToken, refreshToken string, err error)
	GetProfile(username string) (*model.User, error)
	Logout(ctx context.Context, claims *token.CustomClaims) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	RefreshToken(ctx context.Context, refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	jwtManager *token.JWTManager
	rdb        *redis.Client
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager, rdb *redis.Client) UserService {
	return &userService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		rdb:        rdb,
	}
}

func blacklistKey(jti string) string {
	return "blacklist:" + jti
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(password) < minPasswordChars {
		return nil, ErrInvalidUserInput
	}

	taken, err := s.userRepo.UsernameTaken(username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUserExists
	}

	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	newUser := &model.User{
		Username: username,
		Password: hashedPassword,
		Role:     "USER",
	}
	if err := s.userRepo.Create(newUser); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	log.Infof("[UserService] 用户注册成功, username: %s, id: %d", username, newUser.ID)
	return newUser, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(username, password string) (accessToken, refreshToken string, err error) {
	user, err := s.userRepo.FindByUsername(strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *userService) issue(user *model.User) (string, string, error) {
	accessToken, err := s.jwtManager.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// GetProfile 根据用户名获取用户详细信息。
func (s *userService) GetProfile(username string) (*model.User, error) {
	return s.userRepo.FindByUsername(username)
}

// Logout 将已验证 token 的 jti 加入 Redis 黑名单，过期时间为 token 的剩余有效期。
func (s *userService) Logout(ctx context.Context, claims *token.CustomClaims) error {
	ttl := token.Remaining(claims)
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, blacklistKey(claims.ID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	log.Infof("[UserService] 用户已登出, username: %s", claims.Username)
	return nil
}

// IsTokenRevoked 检查 jti 是否在黑名单中。
func (s *userService) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RefreshToken 验证 refresh token 并签发新的 token 对，旧的 refresh token 随即作废。
func (s *userService) RefreshToken(ctx context.Context, refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	claims, err := s.jwtManager.VerifyKind(refreshTokenString, token.KindRefresh)
	if err != nil {
		return "", "", ErrInvalidCredentials
	}
	revoked, err := s.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return "", "", err
	}
	if revoked {
		return "", "", ErrInvalidCredentials
	}

	user, err := s.userRepo.FindByID(claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}

	newAccessToken, newRefreshToken, err = s.issue(user)
	if err != nil {
		return "", "", err
	}
	if ttl := token.Remaining(claims); ttl > 0 {
		if err := s.rdb.Set(ctx, blacklistKey(claims.ID), "1", ttl).Err(); err != nil {
			log.Warnf("[UserService] 作废旧 refresh token 失败: %v", err)
		}
	}
	return newAccessToken, newRefreshToken, nil
}
