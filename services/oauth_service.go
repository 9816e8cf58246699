package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"EquiSaddles/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	githubUserURL     = "https://api.github.com/user"
)

type OAuthService struct {
	providers map[string]*oauth2.Config
	endpoints map[string]string // user info endpoint per provider
}

type OAuthUserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

func NewOAuthService(cfg *config.AuthConfig) *OAuthService {
	service := &OAuthService{
		providers: make(map[string]*oauth2.Config),
		endpoints: map[string]string{
			"google": googleUserInfoURL,
			"github": githubUserURL,
		},
	}

	if cfg.OAuth.Google.ClientID != "" {
		service.providers["google"] = &oauth2.Config{
			ClientID:     cfg.OAuth.Google.ClientID,
			ClientSecret: cfg.OAuth.Google.ClientSecret,
			RedirectURL:  cfg.OAuth.Google.RedirectURL,
			Scopes:       scopesOrDefault(cfg.OAuth.Google.Scopes, "openid", "email", "profile"),
			Endpoint:     google.Endpoint,
		}
	}
	if cfg.OAuth.GitHub.ClientID != "" {
		service.providers["github"] = &oauth2.Config{
			ClientID:     cfg.OAuth.GitHub.ClientID,
			ClientSecret: cfg.OAuth.GitHub.ClientSecret,
			RedirectURL:  cfg.OAuth.GitHub.RedirectURL,
			Scopes:       scopesOrDefault(cfg.OAuth.GitHub.Scopes, "read:user", "user:email"),
			Endpoint:     github.Endpoint,
		}
	}
	return service
}

func scopesOrDefault(scopes []string, def ...string) []string {
	if len(scopes) > 0 {
		return scopes
	}
	return def
}

func (s *OAuthService) GetAuthURL(provider, state string) (string, error) {
	cfg, exists := s.providers[provider]
	if !exists {
		return "", fmt.Errorf("unsupported provider: %s", provider)
	}
	return cfg.AuthCodeURL(state), nil
}

func (s *OAuthService) ExchangeCode(ctx context.Context, provider, code string) (*oauth2.Token, error) {
	cfg, exists := s.providers[provider]
	if !exists {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
	return cfg.Exchange(ctx, code)
}

func (s *OAuthService) GetUserInfo(ctx context.Context, provider string, token *oauth2.Token) (*OAuthUserInfo, error) {
	cfg, exists := s.providers[provider]
	if !exists {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
	client := cfg.Client(ctx, token)
	switch provider {
	case "google":
		return s.getGoogleUserInfo(ctx, client)
	case "github":
		return s.getGitHubUserInfo(ctx, client)
	default:
		return nil, fmt.Errorf("user info not implemented for provider: %s", provider)
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *OAuthService) getGoogleUserInfo(ctx context.Context, client *http.Client) (*OAuthUserInfo, error) {
	var data struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
	}
	if err := getJSON(ctx, client, s.endpoints["google"], &data); err != nil {
		return nil, err
	}
	if !data.VerifiedEmail {
		return nil, ErrNotAdmin
	}
	return &OAuthUserInfo{ID: data.ID, Email: data.Email, Name: data.Name, Provider: "google"}, nil
}

func (s *OAuthService) getGitHubUserInfo(ctx context.Context, client *http.Client) (*OAuthUserInfo, error) {
	var data struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, client, s.endpoints["github"], &data); err != nil {
		return nil, err
	}

	// public email is often hidden; fall back to the primary verified address
	email := data.Email
	if email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, s.endpoints["github"]+"/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}

	name := data.Name
	if name == "" {
		name = data.Login
	}
	return &OAuthUserInfo{
		ID:       fmt.Sprintf("%d", data.ID),
		Email:    email,
		Name:     name,
		Provider: "github",
	}, nil
}

func (s *OAuthService) GetAvailableProviders() []string {
	providers := make([]string, 0, len(s.providers))
	for name := range s.providers {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}
