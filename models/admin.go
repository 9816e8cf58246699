package models

import "time"

// AdminUser 后台管理员
type AdminUser struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Email      string    `json:"email" gorm:"uniqueIndex"`
	Name       string    `json:"name"`
	Password   string    `json:"-"`        // bcrypt, local provider only
	Provider   string    `json:"provider"` // local, google, github
	ProviderID string    `json:"provider_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type AuthResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	User         AdminUser `json:"user"`
}
