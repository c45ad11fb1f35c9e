package conf

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the config structure.
type Config struct {
	Server   Server   `yaml:"server"`
	Auth     Auth     `yaml:"auth"`
	Database Database `yaml:"database"`
	Client   Client   `yaml:"client"`
	Contact  Contact  `yaml:"contact"`
	Log      Log      `yaml:"log"`
}

// Server is the server config.
type Server struct {
	BaseURL string `yaml:"base_url"`
	Addr    string `yaml:"addr"`
}

// Auth is the identity provider config shared by the server and the CLI client.
type Auth struct {
	Enabled      bool     `yaml:"enabled"`
	Domain       string   `yaml:"domain"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Audience     string   `yaml:"audience"`
	RedirectURL  string   `yaml:"redirect_url"` // Optional: if not set, loopback callback on the client
	LogoutURL    string   `yaml:"logout_return_to"`
	Scopes       []string `yaml:"scopes"`
	// ClaimsNamespace prefixes the roles/permissions claims. Defaults to Audience.
	ClaimsNamespace  string `yaml:"claims_namespace"`
	CacheLocation    string `yaml:"cache_location"` // "memory" or a sqlite file path
	UseRefreshTokens bool   `yaml:"use_refresh_tokens"`
}

// Database is the relational store config.
type Database struct {
	Path string `yaml:"path"`
	// SeedProjects fill the project table when it is empty.
	SeedProjects []ProjectSeed `yaml:"seed_projects"`
}

// ProjectSeed is one portfolio project listed in config.
type ProjectSeed struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	ImageURL    string   `yaml:"image_url"`
	ProjectURL  string   `yaml:"project_url"`
	Tags        []string `yaml:"tags"`
}

// Client is the CLI client config.
type Client struct {
	APIBaseURL    string `yaml:"api_base_url"`
	ProtectedPath string `yaml:"protected_path"`
	CallbackAddr  string `yaml:"callback_addr"`
	StoragePrefix string `yaml:"storage_prefix"`
}

// Contact is the contact form config.
type Contact struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	Burst         int `yaml:"burst"`
}

// Log is the logger config.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Issuer returns the provider issuer URL, https://<domain>/
func (a *Auth) Issuer() string {
	d := strings.TrimSuffix(a.Domain, "/")
	if !strings.HasPrefix(d, "http://") && !strings.HasPrefix(d, "https://") {
		d = "https://" + d
	}
	return d + "/"
}

// Namespace returns the claim key prefix for roles and permissions.
func (a *Auth) Namespace() string {
	if a.ClaimsNamespace != "" {
		return a.ClaimsNamespace
	}
	return a.Audience
}

// GetRedirectURL returns the OIDC callback URL
// If RedirectURL is explicitly configured, use it
// Otherwise, construct from the client's loopback callback address
func (a *Auth) GetRedirectURL(callbackAddr string) string {
	if a.RedirectURL != "" {
		return a.RedirectURL
	}
	return "http://" + callbackAddr + "/callback"
}

// Load loads config from file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8080"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if len(cfg.Auth.Scopes) == 0 {
		cfg.Auth.Scopes = []string{"openid", "profile", "email", "roles", "offline_access"}
	}
	if cfg.Auth.CacheLocation == "" {
		cfg.Auth.CacheLocation = "memory"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/portfolio.db"
	}
	if cfg.Client.APIBaseURL == "" {
		cfg.Client.APIBaseURL = cfg.Server.BaseURL
	}
	if cfg.Client.ProtectedPath == "" {
		cfg.Client.ProtectedPath = "/api/auth?endpoint=protected-content"
	}
	if cfg.Client.CallbackAddr == "" {
		cfg.Client.CallbackAddr = "127.0.0.1:52539"
	}
	if cfg.Client.StoragePrefix == "" {
		cfg.Client.StoragePrefix = "portfolio."
	}
	if cfg.Contact.RatePerMinute == 0 {
		cfg.Contact.RatePerMinute = 5
	}
	if cfg.Contact.Burst == 0 {
		cfg.Contact.Burst = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyEnv(cfg *Config) {
	// Override server config from env vars if present
	if baseURL := os.Getenv("SERVER_BASE_URL"); baseURL != "" {
		cfg.Server.BaseURL = baseURL
	}

	// Override auth config from env vars if present
	if domain := os.Getenv("OIDC_DOMAIN"); domain != "" {
		cfg.Auth.Domain = domain
	}
	if clientID := os.Getenv("OIDC_CLIENT_ID"); clientID != "" {
		cfg.Auth.ClientID = clientID
	}
	if secret := os.Getenv("OIDC_CLIENT_SECRET"); secret != "" {
		cfg.Auth.ClientSecret = secret
	}
	if audience := os.Getenv("OIDC_AUDIENCE"); audience != "" {
		cfg.Auth.Audience = audience
	}
	if redirectURL := os.Getenv("OIDC_REDIRECT_URL"); redirectURL != "" {
		cfg.Auth.RedirectURL = redirectURL
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if apiURL := os.Getenv("PORTFOLIO_API_URL"); apiURL != "" {
		cfg.Client.APIBaseURL = apiURL
	}
}
