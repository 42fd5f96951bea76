package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	defaultDataDir       = "/home/xscraper"
	defaultListenAddress = ":8080"
	defaultAIAPIURL      = "https://api.openai.com/v1/chat/completions"
	defaultAIModel       = "gpt-4o-mini"
)

// Config is the full environment-provided configuration, read once at
// startup.
type Config struct {
	DataDir       string
	ListenAddress string
	APIKey        string

	MongoURI      string
	MongoDatabase string

	// Scraping account. Username/password drive the interactive login
	// fallback; the token triple optionally pre-seeds the session and
	// bypasses interactive login entirely.
	Username    string
	Password    string
	AuthToken   string
	CSRFToken   string
	BearerToken string
	Headless    bool

	AIAPIKey string
	AIAPIURL string
	AIModel  string

	WebhookGeneral string
	WebhookAlerts  string
	WebhookErrors  string

	ScanInterval     time.Duration
	ClassifyInterval time.Duration
	RecoveryBatch    int

	ProfilingEnabled bool
}

// Read loads the .env file from the data directory (falling back to the
// process environment) and assembles the configuration.
func Read() Config {
	level := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	SetLogLevel(level)

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
	}

	if err := godotenv.Load(filepath.Join(dataDir, ".env")); err != nil {
		logrus.Debugf("No .env file in %s, reading from environment: %v", dataDir, err)
	}

	c := Config{
		DataDir:       dataDir,
		ListenAddress: getString("LISTEN_ADDRESS", defaultListenAddress),
		APIKey:        os.Getenv("API_KEY"),

		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: getString("MONGODB_DATABASE", "x-scraper"),

		Username:    os.Getenv("X_USERNAME"),
		Password:    os.Getenv("X_PASSWORD"),
		AuthToken:   os.Getenv("X_AUTH_TOKEN"),
		CSRFToken:   os.Getenv("X_CSRF_TOKEN"),
		BearerToken: os.Getenv("X_BEARER_TOKEN"),
		Headless:    os.Getenv("HEADLESS") != "false",

		AIAPIKey: os.Getenv("AI_API_KEY"),
		AIAPIURL: getString("AI_API_URL", defaultAIAPIURL),
		AIModel:  getString("AI_MODEL", defaultAIModel),

		WebhookGeneral: os.Getenv("DISCORD_WEBHOOK_GENERAL"),
		WebhookAlerts:  os.Getenv("DISCORD_WEBHOOK_ALERTS"),
		WebhookErrors:  os.Getenv("DISCORD_WEBHOOK_ERRORS"),

		ScanInterval:     getDuration("SCAN_INTERVAL_SECONDS", 240),
		ClassifyInterval: getDuration("CLASSIFY_INTERVAL_SECONDS", 6),
		RecoveryBatch:    getInt("RECOVERY_BATCH_SIZE", 5),

		ProfilingEnabled: os.Getenv("ENABLE_PPROF") == "true",
	}

	if c.MongoURI == "" {
		logrus.Warn("MONGODB_URI not set, using the in-memory store (state is lost on restart)")
	}
	if c.AIAPIKey == "" {
		logrus.Warn("AI_API_KEY not set, classification will fail")
	}

	return c
}

// SeedCredentials returns the optional pre-seeded session tokens.
func (c Config) SeedCredentials() (authToken, csrfToken, bearerToken string) {
	return c.AuthToken, c.CSRFToken, c.BearerToken
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		logrus.Errorf("Error parsing %s: %v. Setting to default.", key, err)
		return def
	}
	return v
}

func getDuration(key string, defSecs int) time.Duration {
	return time.Duration(getInt(key, defSecs)) * time.Second
}

// ParseLogLevel parses a string and returns the corresponding logrus.Level.
func ParseLogLevel(logLevel string) logrus.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLogLevel sets the log level for the application.
func SetLogLevel(level logrus.Level) {
	logrus.SetLevel(level)
}
