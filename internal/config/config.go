package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Practice holds the static practice identity printed on every invoice.
type Practice struct {
	Name                string
	PractitionerName    string
	PractitionerNumber  string
	PracticeNumber      string
	CompanyRegistration string
	CompanyName         string
	AddressLines        []string
	DefaultLocation     string
	DefaultDuration     string
}

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string
	UploadDir  string

	LogLevel     string
	LogFormat    string
	DebugLogging bool

	PDFEnabled             bool
	PDFCleanupDays         int
	PDFCacheTTLSec         int
	BookingBridgeTTLSec    int
	RenderClaimWaitMs      int
	SuppressExcludedEmails bool
	ModifyTerminology      bool
	InvoiceSettled         bool

	ClassifyMinScore         int
	ClassifyCustomExclusions []string
	ClassifySenderHints      []string

	CacheBackend  string
	CachePrefix   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BookingSource             string
	BookingAPIBaseURL         string
	BookingAPIToken           string
	BookingAPIRateLimitRPS    int
	BookingAPITimeoutMs       int
	MedicalFallbackMaxAgeDays int

	Practice Practice

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
	MailListenerSubject      string
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
		UploadDir:  getEnv("UPLOAD_DIR", filepath.Join(cwd, "data", "uploads")),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
		DebugLogging: getEnvBool("DEBUG_LOGGING", false),

		PDFEnabled:             getEnvBool("PDF_ENABLED", true),
		PDFCleanupDays:         getEnvInt("PDF_CLEANUP_DAYS", 30),
		PDFCacheTTLSec:         getEnvInt("PDF_CACHE_TTL_SEC", 1200),
		BookingBridgeTTLSec:    getEnvInt("BOOKING_BRIDGE_TTL_SEC", 120),
		RenderClaimWaitMs:      getEnvInt("RENDER_CLAIM_WAIT_MS", 5000),
		SuppressExcludedEmails: getEnvBool("SUPPRESS_EXCLUDED_EMAILS", true),
		ModifyTerminology:      getEnvBool("MODIFY_EMAIL_TERMINOLOGY", true),
		InvoiceSettled:         getEnvBool("INVOICE_SETTLED", true),

		ClassifyMinScore:         getEnvInt("CLASSIFY_MIN_SCORE", 3),
		ClassifyCustomExclusions: getEnvLines("CLASSIFY_CUSTOM_EXCLUSIONS", nil),
		ClassifySenderHints:      getEnvList("CLASSIFY_SENDER_HINTS", ",", []string{"timetics", "dr ben", "performance md"}),

		CacheBackend:  getEnv("CACHE_BACKEND", "sqlite"),
		CachePrefix:   getEnv("CACHE_PREFIX", "mailinvoice_"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		BookingSource:             getEnv("BOOKING_SOURCE", "sqlite"),
		BookingAPIBaseURL:         getEnv("BOOKING_API_BASE_URL", ""),
		BookingAPIToken:           getEnv("BOOKING_API_TOKEN", ""),
		BookingAPIRateLimitRPS:    getEnvInt("BOOKING_API_RATE_LIMIT_RPS", 5),
		BookingAPITimeoutMs:       getEnvInt("BOOKING_API_TIMEOUT_MS", 15000),
		MedicalFallbackMaxAgeDays: getEnvInt("MEDICAL_FALLBACK_MAX_AGE_DAYS", 180),

		Practice: Practice{
			Name:                getEnv("PRACTICE_NAME", "Dr Ben"),
			PractitionerName:    getEnv("PRACTITIONER_NAME", "Dr Ben Coetsee"),
			PractitionerNumber:  getEnv("PRACTITIONER_NUMBER", "MP0953814"),
			PracticeNumber:      getEnv("PRACTICE_NUMBER", "PR1153307"),
			CompanyRegistration: getEnv("COMPANY_REGISTRATION", "2024/748523/21"),
			CompanyName:         getEnv("COMPANY_NAME", "Performance MD Inc"),
			AddressLines: getEnvList("PRACTICE_ADDRESS", ";", []string{
				"Office A2, 1st floor Polo Village Offices",
				"Val de Vie, Paarl, Western Cape",
				"7636, South Africa",
			}),
			DefaultLocation: getEnv("DEFAULT_LOCATION", "Val De Vie Estate, Paarl"),
			DefaultDuration: getEnv("DEFAULT_DURATION", "30 min"),
		},

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
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
		MailListenerSubject:      getEnv("MAIL_LISTENER_SUBJECT", "scheduled"),
	}

	if cfg.ClassifyMinScore < 1 {
		cfg.ClassifyMinScore = 1
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// PDFDir is the directory generated invoices are written to.
func (c Config) PDFDir() string {
	return filepath.Join(c.UploadDir, "invoice-pdf")
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

// getEnvLines splits a newline-delimited value, dropping blank lines.
func getEnvLines(key string, fallback []string) []string {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return splitNonEmpty(strings.ReplaceAll(value, `\n`, "\n"), "\n")
}

func getEnvList(key, sep string, fallback []string) []string {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return splitNonEmpty(value, sep)
}

func splitNonEmpty(value, sep string) []string {
	var out []string
	for _, part := range strings.Split(value, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
