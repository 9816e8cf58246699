package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"EquiSaddles/config"
	"EquiSaddles/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type AuthService struct {
	Db            *gorm.DB
	jwtSecret     []byte
	tokenExpiry   time.Duration
	refreshExpiry time.Duration
	isAdminEmail  func(string) bool
}

func NewAuthService(db *gorm.DB, cfg *config.AuthConfig) *AuthService {
	return &AuthService{
		Db:            db,
		jwtSecret:     []byte(cfg.JWTSecret),
		tokenExpiry:   time.Duration(cfg.TokenExpiry) * time.Hour,
		refreshExpiry: time.Duration(cfg.RefreshExpiry) * time.Hour,
		isAdminEmail:  cfg.IsAdminEmail,
	}
}

type Claims struct {
	AdminID   uint   `json:"admin_id"`
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func (s *AuthService) signToken(admin *models.AdminUser, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		AdminID:   admin.ID,
		Email:     admin.Email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *AuthService) GenerateTokens(admin *models.AdminUser) (*models.AuthResponse, error) {
	accessToken, err := s.signToken(admin, tokenTypeAccess, s.tokenExpiry)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.signToken(admin, tokenTypeRefresh, s.refreshExpiry)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.tokenExpiry.Seconds()),
		User:         *admin,
	}, nil
}

func (s *AuthService) parse(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenType {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ValidateToken accepts access tokens only.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, tokenTypeAccess)
}

// Refresh exchanges a refresh token for a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error) {
	claims, err := s.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	admin, err := s.GetAdmin(ctx, claims.AdminID)
	if err != nil {
		return nil, err
	}
	return s.GenerateTokens(admin)
}

func (s *AuthService) GetAdmin(ctx context.Context, id uint) (*models.AdminUser, error) {
	var admin models.AdminUser
	if err := s.Db.WithContext(ctx).First(&admin, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, persistenceError("get admin", err)
	}
	return &admin, nil
}

func (s *AuthService) CreateAdmin(ctx context.Context, email, name, password string) (*models.AdminUser, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	admin := &models.AdminUser{
		Email:    normalizeEmail(email),
		Name:     name,
		Password: string(hashedPassword),
		Provider: "local",
	}
	if err := s.Db.WithContext(ctx).Create(admin).Error; err != nil {
		return nil, persistenceError("create admin", err)
	}
	return admin, nil
}

func (s *AuthService) LoginLocal(ctx context.Context, email, password string) (*models.AdminUser, error) {
	var admin models.AdminUser
	err := s.Db.WithContext(ctx).
		Where("email = ? AND provider = ?", normalizeEmail(email), "local").
		First(&admin).Error
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &admin, nil
}

// FindOrCreateOAuthAdmin signs in an OAuth identity. Only allow-listed
// addresses become back-office accounts.
func (s *AuthService) FindOrCreateOAuthAdmin(ctx context.Context, info *OAuthUserInfo) (*models.AdminUser, error) {
	email := normalizeEmail(info.Email)
	if email == "" || !s.isAdminEmail(email) {
		return nil, ErrNotAdmin
	}

	db := s.Db.WithContext(ctx)
	var admin models.AdminUser
	err := db.Where("provider = ? AND provider_id = ?", info.Provider, info.ID).First(&admin).Error
	if err == nil {
		if admin.Email != email || (info.Name != "" && admin.Name != info.Name) {
			admin.Email = email
			if info.Name != "" {
				admin.Name = strings.TrimSpace(info.Name)
			}
			if err := db.Save(&admin).Error; err != nil {
				return nil, persistenceError("update admin", err)
			}
		}
		return &admin, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, persistenceError("find admin", err)
	}

	admin = models.AdminUser{
		Email:      email,
		Name:       strings.TrimSpace(info.Name),
		Provider:   info.Provider,
		ProviderID: info.ID,
	}
	if err := db.Create(&admin).Error; err != nil {
		return nil, persistenceError("create admin", err)
	}
	return &admin, nil
}
