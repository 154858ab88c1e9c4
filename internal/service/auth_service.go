package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"crediario/internal/config"
	"crediario/internal/model"
	"crediario/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrInvalidToken       = errors.New("登录已失效")
)

type AuthService struct {
	cfg       *config.AuthConfig
	adminRepo *repository.AdminRepository
	now       func() time.Time
}

func NewAuthService(db *gorm.DB, cfg *config.AuthConfig) *AuthService {
	return &AuthService{
		cfg:       cfg,
		adminRepo: repository.NewAdminRepository(db),
		now:       time.Now,
	}
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Admin     *model.Admin `json:"admin"`
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	admin, err := s.adminRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !admin.Active {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(time.Duration(s.cfg.TokenTTLMinutes) * time.Minute)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(admin.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	key, err := s.signingKey()
	if err != nil {
		return nil, err
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("签发令牌失败: %w", err)
	}

	if err := s.adminRepo.TouchLogin(ctx, admin.ID, now.UTC()); err != nil {
		log.Printf("[Auth] 更新登录时间失败: adminID=%d, err=%v", admin.ID, err)
	}

	return &LoginResult{Token: token, ExpiresAt: expiresAt, Admin: admin}, nil
}

// signingKey 密钥为空时拒绝签发和校验
func (s *AuthService) signingKey() ([]byte, error) {
	secret := strings.TrimSpace(s.cfg.JWTSecret)
	if secret == "" {
		return nil, ErrInvalidToken
	}
	return []byte(secret), nil
}

// ParseToken 校验令牌，返回管理员 ID
func (s *AuthService) ParseToken(tokenString string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey()
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	adminID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || adminID <= 0 {
		return 0, ErrInvalidToken
	}
	return adminID, nil
}

// EnsureBootstrapAdmin 配置了初始管理员且库里不存在时创建
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context) error {
	email := strings.ToLower(strings.TrimSpace(s.cfg.BootstrapEmail))
	if email == "" || s.cfg.BootstrapPassword == "" {
		return nil
	}

	_, err := s.adminRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrAdminNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.BootstrapPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("生成密码哈希失败: %w", err)
	}

	admin := &model.Admin{Email: email, Name: "admin", PasswordHash: string(hash), Active: true}
	if err := s.adminRepo.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicateRequest) {
			return nil
		}
		return err
	}
	log.Printf("[Auth] 已创建初始管理员: %s", email)
	return nil
}
