package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerPort string
	ServerHost string

	// Database configuration
	DBPath string

	// Mailbox configuration (supplier notification ingestion)
	MailHost         string
	MailPort         int
	MailEncryption   string // "ssl", "tls" or "none"
	MailUsername     string
	MailPassword     string
	MailFolder       string
	MailSinceDays    int
	MailSupplier     string
	MailSenderMarker string
	MailAutoLink     bool

	// Carrier gateway configuration
	CarrierBaseURL     string
	CarrierAccessKey   string
	CarrierSecretKey   string
	CarrierLogin       string
	CarrierPassword    string
	CarrierDevMode     bool
	DefaultContentCode string

	// Default parcel dimensions used when an order carries none
	DefaultParcelWeightKg float64
	DefaultParcelLengthCm int
	DefaultParcelWidthCm  int
	DefaultParcelHeightCm int

	// Origin address for rate quotes and label purchase
	OriginCompany string
	OriginStreet  string
	OriginZipcode string
	OriginCity    string
	OriginCountry string
	OriginEmail   string
	OriginPhone   string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables with defaults.
// If a .env file exists, it will be loaded first.
func Load() (*Config, error) {
	loadEnvFile(".env")
	config := &Config{
		// Server defaults
		ServerPort: getEnvOrDefault("SERVER_PORT", "8080"),
		ServerHost: getEnvOrDefault("SERVER_HOST", "localhost"),

		// Database defaults
		DBPath: getEnvOrDefault("DB_PATH", "./database.db"),

		// Mailbox configuration
		MailHost:         os.Getenv("MAIL_HOST"),
		MailPort:         getEnvIntOrDefault("MAIL_PORT", 993),
		MailEncryption:   getEnvOrDefault("MAIL_ENCRYPTION", "ssl"),
		MailUsername:     os.Getenv("MAIL_USERNAME"),
		MailPassword:     os.Getenv("MAIL_PASSWORD"),
		MailFolder:       getEnvOrDefault("MAIL_FOLDER", "INBOX"),
		MailSinceDays:    getEnvIntOrDefault("MAIL_SINCE_DAYS", 7),
		MailSupplier:     getEnvOrDefault("MAIL_SUPPLIER", "supplier"),
		MailSenderMarker: os.Getenv("MAIL_SENDER_MARKER"),
		MailAutoLink:     getEnvBoolOrDefault("MAIL_AUTO_LINK", true),

		// Carrier gateway
		CarrierBaseURL:     getEnvOrDefault("CARRIER_BASE_URL", "https://www.envoimoinscher.com/api"),
		CarrierAccessKey:   os.Getenv("CARRIER_ACCESS_KEY"),
		CarrierSecretKey:   os.Getenv("CARRIER_SECRET_KEY"),
		CarrierLogin:       os.Getenv("CARRIER_LOGIN"),
		CarrierPassword:    os.Getenv("CARRIER_PASSWORD"),
		CarrierDevMode:     getEnvBoolOrDefault("CARRIER_DEV_MODE", false),
		DefaultContentCode: getEnvOrDefault("CARRIER_CONTENT_CODE", "10120"),

		DefaultParcelWeightKg: getEnvFloatOrDefault("PARCEL_WEIGHT_KG", 0.5),
		DefaultParcelLengthCm: getEnvIntOrDefault("PARCEL_LENGTH_CM", 20),
		DefaultParcelWidthCm:  getEnvIntOrDefault("PARCEL_WIDTH_CM", 15),
		DefaultParcelHeightCm: getEnvIntOrDefault("PARCEL_HEIGHT_CM", 10),

		OriginCompany: os.Getenv("ORIGIN_COMPANY"),
		OriginStreet:  os.Getenv("ORIGIN_STREET"),
		OriginZipcode: os.Getenv("ORIGIN_ZIPCODE"),
		OriginCity:    os.Getenv("ORIGIN_CITY"),
		OriginCountry: getEnvOrDefault("ORIGIN_COUNTRY", "FR"),
		OriginEmail:   os.Getenv("ORIGIN_EMAIL"),
		OriginPhone:   os.Getenv("ORIGIN_PHONE"),

		// Logging
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("invalid server port: %s", c.ServerPort)
	}

	if c.DBPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	switch c.MailEncryption {
	case "ssl", "tls", "none":
	default:
		return fmt.Errorf("invalid mail encryption: %s (must be one of: ssl, tls, none)", c.MailEncryption)
	}

	if c.MailPort < 1 || c.MailPort > 65535 {
		return fmt.Errorf("invalid mail port: %d", c.MailPort)
	}

	if c.MailSinceDays < 1 || c.MailSinceDays > 365 {
		return fmt.Errorf("mail since days must be between 1 and 365")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	isValidLogLevel := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValidLogLevel = true
			break
		}
	}
	if !isValidLogLevel {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.ServerHost + ":" + c.ServerPort
}

// MailboxConfigured reports whether the credentials needed for a sync run
// are all present.
func (c *Config) MailboxConfigured() bool {
	return c.MailHost != "" && c.MailUsername != "" && c.MailPassword != ""
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault returns environment variable as boolean or default
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvIntOrDefault returns environment variable as integer or default
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloatOrDefault returns environment variable as float or default
func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// loadEnvFile loads environment variables from a .env file if it exists
func loadEnvFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		// .env file doesn't exist or can't be opened, which is fine
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Split on first '=' character
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if (strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"")) ||
			(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'")) {
			value = value[1 : len(value)-1]
		}

		// Only set if not already set in environment
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
