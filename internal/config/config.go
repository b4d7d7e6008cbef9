package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string

	// Message classifier thresholds. Empirically tuned; overridable so they
	// can be recalibrated against a labeled corpus without a rebuild.
	OfferScoreMargin   int
	OfferScoreMin      int
	RequestScoreMargin int
	RequestScoreMin    int
	AmbiguousGap       int
	BodyWindowChars    int

	DecorativeImageMaxBytes int

	// Escalation: off | always | fallback | auto
	EscalationMode     string
	EscalationMinItems int

	DirectoryAPIBaseURL   string
	DirectoryAPIToken     string
	DirectoryRateLimitRPS int
	DirectoryTimeoutMs    int

	DocAIBaseURL   string
	DocAIAPIKey    string
	DocAITimeoutMs int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		OfferScoreMargin:   getEnvInt("OFFER_SCORE_MARGIN", 3),
		OfferScoreMin:      getEnvInt("OFFER_SCORE_MIN", 5),
		RequestScoreMargin: getEnvInt("REQUEST_SCORE_MARGIN", 2),
		RequestScoreMin:    getEnvInt("REQUEST_SCORE_MIN", 3),
		AmbiguousGap:       getEnvInt("AMBIGUOUS_GAP", 1),
		BodyWindowChars:    getEnvInt("BODY_WINDOW_CHARS", 6000),

		DecorativeImageMaxBytes: getEnvInt("DECORATIVE_IMAGE_MAX_BYTES", 50*1024),

		EscalationMode:     getEnv("ESCALATION_MODE", "auto"),
		EscalationMinItems: getEnvInt("ESCALATION_MIN_ITEMS", 2),

		DirectoryAPIBaseURL:   getEnv("DIRECTORY_API_BASE_URL", "https://directory.rfqdesk.local/api/v1"),
		DirectoryAPIToken:     getEnv("DIRECTORY_API_TOKEN", ""),
		DirectoryRateLimitRPS: getEnvInt("DIRECTORY_RATE_LIMIT_RPS", 5),
		DirectoryTimeoutMs:    getEnvInt("DIRECTORY_TIMEOUT_MS", 30000),

		DocAIBaseURL:   getEnv("DOCAI_BASE_URL", ""),
		DocAIAPIKey:    getEnv("DOCAI_API_KEY", ""),
		DocAITimeoutMs: getEnvInt("DOCAI_TIMEOUT_MS", 60000),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 30),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
