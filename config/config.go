package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via config files or the environment.
type AppConfig struct {
	AppPort       string
	PublicSiteURL string
	APIBaseURL    string
	JWTSecret     string

	AllowedOrigins     []string
	RateLimitPerMinute int

	// Daily scan quota
	GuestDailyLimit int
	FreeDailyLimit  int
	LoginBonusScans int

	// Storage backend for quota and recipe records: supabase | mysql | postgres | memory
	StorageDriver string
	SupabaseURL   string
	SupabaseKey   string
	DatabaseURI   string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	PostgresDSN   string

	// OpenAI
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIImageModel  string
	VisionTimeoutSec  int
	GenerationTimeout int
	ImageTimeoutSec   int

	// GitHub content store
	GitHubToken    string
	GitHubRepo     string
	GitHubBranch   string
	GitHubBasePath string
	ContentTimeout int

	// Redis for caching
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	// Gin framework configuration
	GinMode string
	GinPath string

	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

var cfg AppConfig
var loaded bool

// githubBasePathSet records that the config file carried an explicit
// BasePath, including the empty string, which means the repo root.
// The "public-site" default only applies when nothing set the field.
var githubBasePathSet bool

// Load loads the application configuration. It should be called once during boot.
// Precedence: config/config.json -> defaults -> environment variable overrides.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	_ = loadJSONConfig(filepath.Join("config", "config.json"), &cfg)
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Reset clears the cached configuration. Test helper only.
func Reset() {
	cfg = AppConfig{}
	loaded = false
	githubBasePathSet = false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	dec := json.NewDecoder(f)
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			case json.Number:
				i, _ := t.Int64()
				return int(i)
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.PublicSiteURL = getString(app, "PublicSiteURL")
		out.APIBaseURL = getString(app, "APIBaseURL")
		out.JWTSecret = getString(app, "JWTSecret")
		if v := getInt(app, "RateLimitPerMinute"); v != 0 {
			out.RateLimitPerMinute = v
		}
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
	}

	if q, ok := raw["quota"].(map[string]any); ok {
		if v := getInt(q, "GuestDailyLimit"); v != 0 {
			out.GuestDailyLimit = v
		}
		if v := getInt(q, "FreeDailyLimit"); v != 0 {
			out.FreeDailyLimit = v
		}
		if v := getInt(q, "LoginBonusScans"); v != 0 {
			out.LoginBonusScans = v
		}
	}

	if st, ok := raw["storage"].(map[string]any); ok {
		out.StorageDriver = getString(st, "Driver")
		out.SupabaseURL = getString(st, "SupabaseURL")
		out.SupabaseKey = getString(st, "SupabaseKey")
		out.DatabaseURI = getString(st, "DatabaseURI")
		out.DBHost = getString(st, "DBHost")
		out.DBPort = getString(st, "DBPort")
		out.DBUser = getString(st, "DBUser")
		out.DBPassword = getString(st, "DBPassword")
		out.DBName = getString(st, "DBName")
		out.PostgresDSN = getString(st, "PostgresDSN")
	}

	if oa, ok := raw["openai"].(map[string]any); ok {
		out.OpenAIAPIKey = getString(oa, "APIKey")
		out.OpenAIBaseURL = getString(oa, "BaseURL")
		out.OpenAIModel = getString(oa, "Model")
		out.OpenAIImageModel = getString(oa, "ImageModel")
		if v := getInt(oa, "VisionTimeoutSec"); v != 0 {
			out.VisionTimeoutSec = v
		}
		if v := getInt(oa, "GenerationTimeoutSec"); v != 0 {
			out.GenerationTimeout = v
		}
		if v := getInt(oa, "ImageTimeoutSec"); v != 0 {
			out.ImageTimeoutSec = v
		}
	}

	if gh, ok := raw["github"].(map[string]any); ok {
		out.GitHubToken = getString(gh, "Token")
		out.GitHubRepo = getString(gh, "Repo")
		out.GitHubBranch = getString(gh, "Branch")
		// empty string is a valid base path (repo root), so only apply when key present
		if v, ok := gh["BasePath"]; ok {
			if s, ok := v.(string); ok {
				out.GitHubBasePath = s
				githubBasePathSet = true
			}
		}
		if v := getInt(gh, "TimeoutSec"); v != 0 {
			out.ContentTimeout = v
		}
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		if v := getInt(rds, "RedisPort"); v != 0 {
			out.RedisPort = v
		}
		if v := getInt(rds, "RedisDB"); v != 0 {
			out.RedisDB = v
		}
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		if v := getString(g, "Mode"); v != "" {
			out.GinMode = v
		}
		if v := getString(g, "LogPath"); v != "" {
			out.GinPath = v
		}
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		if v := getString(lg, "Level"); v != "" {
			out.LogLevel = v
		}
		if v := getString(lg, "Path"); v != "" {
			out.LogPath = v
		}
		if v := getInt(lg, "MaxSizeMB"); v != 0 {
			out.LogMaxSizeMB = v
		}
		if v := getInt(lg, "MaxBackups"); v != 0 {
			out.LogMaxBackups = v
		}
		if v := getInt(lg, "MaxAgeDays"); v != 0 {
			out.LogMaxAgeDays = v
		}
		out.LogCompress = getBool(lg, "Compress")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.PublicSiteURL == "" {
		c.PublicSiteURL = "https://ok-snap.com"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.GuestDailyLimit == 0 {
		c.GuestDailyLimit = 3
	}
	if c.FreeDailyLimit == 0 {
		c.FreeDailyLimit = 5
	}
	if c.LoginBonusScans == 0 {
		c.LoginBonusScans = 5
	}
	if c.StorageDriver == "" {
		c.StorageDriver = "supabase"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "oksnap"
	}
	if c.OpenAIModel == "" {
		c.OpenAIModel = "gpt-4o"
	}
	if c.OpenAIImageModel == "" {
		c.OpenAIImageModel = "dall-e-3"
	}
	if c.VisionTimeoutSec == 0 {
		c.VisionTimeoutSec = 50
	}
	if c.GenerationTimeout == 0 {
		c.GenerationTimeout = 60
	}
	if c.ImageTimeoutSec == 0 {
		c.ImageTimeoutSec = 60
	}
	if c.GitHubBranch == "" {
		c.GitHubBranch = "site"
	}
	if !githubBasePathSet && c.GitHubBasePath == "" {
		c.GitHubBasePath = "public-site"
	}
	if c.ContentTimeout == 0 {
		c.ContentTimeout = 30
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("PUBLIC_SITE_URL", ""); v != "" {
		c.PublicSiteURL = v
	}
	if v := getEnv("API_BASE_URL", ""); v != "" {
		c.APIBaseURL = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("GUEST_DAILY_LIMIT", ""); v != "" {
		c.GuestDailyLimit = mustParseInt(v)
	}
	if v := getEnv("FREE_DAILY_LIMIT", ""); v != "" {
		c.FreeDailyLimit = mustParseInt(v)
	}
	if v := getEnv("LOGIN_BONUS_SCANS", ""); v != "" {
		c.LoginBonusScans = mustParseInt(v)
	}
	if v := getEnv("STORAGE_DRIVER", ""); v != "" {
		c.StorageDriver = v
	}
	if v := getEnv("SUPABASE_URL", ""); v != "" {
		c.SupabaseURL = v
	}
	if v := getEnv("SUPABASE_SERVICE_ROLE_KEY", ""); v != "" {
		c.SupabaseKey = v
	} else if v := getEnv("SUPABASE_ANON_KEY", ""); v != "" && c.SupabaseKey == "" {
		c.SupabaseKey = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("POSTGRES_DSN", ""); v != "" {
		c.PostgresDSN = v
	}
	if v := getEnv("OPENAI_API_KEY", ""); v != "" {
		c.OpenAIAPIKey = v
	}
	if v := getEnv("OPENAI_BASE_URL", ""); v != "" {
		c.OpenAIBaseURL = v
	}
	if v := getEnv("OPENAI_MODEL", ""); v != "" {
		c.OpenAIModel = v
	}
	if v := getEnv("OPENAI_IMAGE_MODEL", ""); v != "" {
		c.OpenAIImageModel = v
	}
	if v := getEnv("GITHUB_TOKEN", ""); v != "" {
		c.GitHubToken = v
	}
	if v := getEnv("GITHUB_REPO", ""); v != "" {
		c.GitHubRepo = v
	}
	if v := getEnv("GITHUB_BRANCH", ""); v != "" {
		c.GitHubBranch = v
	}
	if v, ok := os.LookupEnv("GITHUB_BASE_PATH"); ok {
		// explicit empty value means files live at the repo root
		c.GitHubBasePath = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
