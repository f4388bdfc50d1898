package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrConfigNotFound = errors.New("configuration not found")

const (
	DefaultReportPath  = "output/description.md"
	DefaultConcurrency = 10
	DefaultPageSize    = 50
	DefaultProjectKey  = "EFU"
	DefaultTeam        = "foundations"

	AuthAPIToken            = "api_token"
	AuthPersonalAccessToken = "personal_access_token"
)

type Settings struct {
	Jira     JiraConfig     `toml:"jira" mapstructure:"jira"`
	GitLab   GitLabConfig   `toml:"gitlab" mapstructure:"gitlab"`
	Delivery DeliveryConfig `toml:"delivery" mapstructure:"delivery"`
}

type JiraConfig struct {
	URL        string     `toml:"url" mapstructure:"url"`
	Email      string     `toml:"email" mapstructure:"email"`
	ProjectKey string     `toml:"project_key" mapstructure:"project_key"`
	AuthMethod AuthMethod `toml:"auth_method" mapstructure:"auth_method"`
}

type AuthMethod struct {
	Type  string `toml:"type" mapstructure:"type"`
	Token string `toml:"token" mapstructure:"token"`
}

type GitLabConfig struct {
	BaseURL string `toml:"base_url" mapstructure:"base_url"`
	Token   string `toml:"token" mapstructure:"token"`
}

type DeliveryConfig struct {
	Team        string `toml:"team" mapstructure:"team"`
	ReportPath  string `toml:"report_path" mapstructure:"report_path"`
	Concurrency int    `toml:"concurrency" mapstructure:"concurrency"`
	PageSize    int    `toml:"page_size" mapstructure:"page_size"`
}

// envBindings maps config keys to the environment variables that override
// them. The Jira and GitLab names match the ones used in .env files.
var envBindings = map[string]string{
	"jira.url":               "JIRA_HOST",
	"jira.email":             "JIRA_EMAIL_ADDRESS",
	"jira.project_key":       "JIRA_PROJECT_KEY",
	"jira.auth_method.type":  "JIRA_AUTH_TYPE",
	"jira.auth_method.token": "JIRA_TOKEN",
	"gitlab.base_url":        "GITLAB_HOST",
	"gitlab.token":           "GITLAB_TOKEN",
	"delivery.team":          "DELIVER_TEAM",
	"delivery.report_path":   "DELIVER_REPORT_PATH",
	"delivery.concurrency":   "DELIVER_CONCURRENCY",
	"delivery.page_size":     "DELIVER_PAGE_SIZE",
}

// Load reads ~/.deliver/config.toml, a .env file in the working directory
// and the environment. Environment values win over the file.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit config file path and no .env handling.
func LoadFrom(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetDefault("jira.auth_method.type", AuthAPIToken)
	v.SetDefault("jira.project_key", DefaultProjectKey)
	v.SetDefault("delivery.team", DefaultTeam)
	v.SetDefault("delivery.report_path", DefaultReportPath)
	v.SetDefault("delivery.concurrency", DefaultConcurrency)
	v.SetDefault("delivery.page_size", DefaultPageSize)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	fileFound := true
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		fileFound = false
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if !fileFound && settings.Jira.URL == "" && settings.GitLab.BaseURL == "" {
		return nil, ErrConfigNotFound
	}

	settings.normalize()
	return settings, nil
}

func (s *Settings) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(s); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if err := file.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod config: %w", err)
	}

	return nil
}

// Validate reports every required setting that is missing.
func (s *Settings) Validate() error {
	var errs []error
	if s.Jira.URL == "" {
		errs = append(errs, errors.New("jira.url is required (JIRA_HOST)"))
	}
	if s.Jira.AuthMethod.Token == "" {
		errs = append(errs, errors.New("jira.auth_method.token is required (JIRA_TOKEN)"))
	}
	if s.Jira.AuthMethod.Type != AuthPersonalAccessToken && s.Jira.Email == "" {
		errs = append(errs, errors.New("jira.email is required for api_token auth (JIRA_EMAIL_ADDRESS)"))
	}
	switch s.Jira.AuthMethod.Type {
	case AuthAPIToken, AuthPersonalAccessToken:
	default:
		errs = append(errs, fmt.Errorf("jira.auth_method.type %q is invalid (valid values: %s, %s)",
			s.Jira.AuthMethod.Type, AuthAPIToken, AuthPersonalAccessToken))
	}
	if s.GitLab.BaseURL == "" {
		errs = append(errs, errors.New("gitlab.base_url is required (GITLAB_HOST)"))
	}
	if s.GitLab.Token == "" {
		errs = append(errs, errors.New("gitlab.token is required (GITLAB_TOKEN)"))
	}
	if s.Delivery.Concurrency < 1 {
		errs = append(errs, errors.New("delivery.concurrency must be at least 1"))
	}
	if s.Delivery.PageSize < 1 {
		errs = append(errs, errors.New("delivery.page_size must be at least 1"))
	}
	return errors.Join(errs...)
}

func (s *Settings) normalize() {
	s.Jira.URL = normalizeHost(s.Jira.URL)
	s.GitLab.BaseURL = normalizeHost(s.GitLab.BaseURL)
	s.Jira.Email = strings.TrimSpace(s.Jira.Email)
	s.Jira.ProjectKey = strings.TrimSpace(s.Jira.ProjectKey)
	s.Delivery.Team = strings.TrimSpace(s.Delivery.Team)
	if s.Jira.AuthMethod.Type == "" {
		s.Jira.AuthMethod.Type = AuthAPIToken
	}
	if s.Jira.ProjectKey == "" {
		s.Jira.ProjectKey = DefaultProjectKey
	}
	if s.Delivery.Team == "" {
		s.Delivery.Team = DefaultTeam
	}
	if s.Delivery.ReportPath == "" {
		s.Delivery.ReportPath = DefaultReportPath
	}
	if s.Delivery.Concurrency == 0 {
		s.Delivery.Concurrency = DefaultConcurrency
	}
	if s.Delivery.PageSize == 0 {
		s.Delivery.PageSize = DefaultPageSize
	}
}

// normalizeHost accepts bare hosts ("jira.example.com") as well as URLs.
func normalizeHost(raw string) string {
	host := strings.TrimRight(strings.TrimSpace(raw), "/")
	if host == "" {
		return ""
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".deliver"), nil
}

// ConfigPath honours DELIVER_CONFIG before falling back to ~/.deliver/config.toml.
func ConfigPath() (string, error) {
	if path := os.Getenv("DELIVER_CONFIG"); path != "" {
		return path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func MaskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	head := token[:min(4, len(token))]
	tail := token[max(0, len(token)-4):]
	return fmt.Sprintf("%s***%s", head, tail)
}
