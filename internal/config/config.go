/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings, including the insurance scheme coverage table and the
 * reconciliation ranking knobs.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the billing-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix          string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	ClaimDecisionQueue      string `mapstructure:"CLAIM_DECISION_QUEUE"`
	ClaimDecisionRoutingKey string `mapstructure:"CLAIM_DECISION_ROUTING_KEY"`
	StaffJWKSURL            string `mapstructure:"STAFF_JWKS_URL"`

	SchemeCoverageTable     string  `mapstructure:"SCHEME_COVERAGE_TABLE"`
	DefaultCoverageFraction float64 `mapstructure:"DEFAULT_COVERAGE_FRACTION"`

	MandatoryDepartments    string `mapstructure:"MANDATORY_DEPARTMENTS"`
	AgingThresholdDays      int    `mapstructure:"AGING_THRESHOLD_DAYS"`
	SmallAmountThreshold    int64  `mapstructure:"SMALL_AMOUNT_THRESHOLD_PAISE"`
	ConflictRetryAttempts   int    `mapstructure:"CONFLICT_RETRY_ATTEMPTS"`
	GatewayTimeoutSeconds   int    `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`
	QueueCacheTTLSeconds    int    `mapstructure:"QUEUE_CACHE_TTL_SECONDS"`

	// Derived fields, populated by LoadConfig.
	CoverageFractions map[string]float64 `mapstructure:"-"`
	DepartmentList    []string           `mapstructure:"-"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_KEY_PREFIX", "billing")
	viper.SetDefault("CLAIM_DECISION_QUEUE", "billing_service.claim_decisions")
	viper.SetDefault("CLAIM_DECISION_ROUTING_KEY", "insurer.claim.decision")
	viper.SetDefault("SCHEME_COVERAGE_TABLE", "CGHS:0.90,ECHS:0.85,Railways:0.80")
	viper.SetDefault("DEFAULT_COVERAGE_FRACTION", 0.70)
	viper.SetDefault("MANDATORY_DEPARTMENTS", "ICU,CCU,Emergency")
	viper.SetDefault("AGING_THRESHOLD_DAYS", 30)
	viper.SetDefault("SMALL_AMOUNT_THRESHOLD_PAISE", 500000) // 5000 INR
	viper.SetDefault("CONFLICT_RETRY_ATTEMPTS", 3)
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 10)
	viper.SetDefault("QUEUE_CACHE_TTL_SECONDS", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("CLAIM_DECISION_QUEUE")
	_ = viper.BindEnv("CLAIM_DECISION_ROUTING_KEY")
	_ = viper.BindEnv("STAFF_JWKS_URL")
	_ = viper.BindEnv("SCHEME_COVERAGE_TABLE")
	_ = viper.BindEnv("DEFAULT_COVERAGE_FRACTION")
	_ = viper.BindEnv("MANDATORY_DEPARTMENTS")
	_ = viper.BindEnv("AGING_THRESHOLD_DAYS")
	_ = viper.BindEnv("SMALL_AMOUNT_THRESHOLD_PAISE")
	_ = viper.BindEnv("CONFLICT_RETRY_ATTEMPTS")
	_ = viper.BindEnv("GATEWAY_TIMEOUT_SECONDS")
	_ = viper.BindEnv("QUEUE_CACHE_TTL_SECONDS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "billing"
	}

	if config.DefaultCoverageFraction <= 0 || config.DefaultCoverageFraction > 1 {
		log.Printf("level=warn component=config msg=\"default coverage fraction out of range; using 0.70\" value=%f", config.DefaultCoverageFraction)
		config.DefaultCoverageFraction = 0.70
	}
	if config.AgingThresholdDays < 0 {
		config.AgingThresholdDays = 0
	}
	if config.SmallAmountThreshold < 0 {
		config.SmallAmountThreshold = 0
	}
	if config.ConflictRetryAttempts <= 0 {
		config.ConflictRetryAttempts = 3
	}
	if config.GatewayTimeoutSeconds <= 0 {
		config.GatewayTimeoutSeconds = 10
	}
	if config.QueueCacheTTLSeconds <= 0 {
		config.QueueCacheTTLSeconds = 30
	}

	config.CoverageFractions = parseCoverageTable(config.SchemeCoverageTable)
	config.DepartmentList = parseDepartments(config.MandatoryDepartments)

	return
}

// parseCoverageTable parses "SCHEME:fraction,SCHEME:fraction" pairs. Malformed
// entries are logged and skipped rather than failing the boot.
func parseCoverageTable(raw string) map[string]float64 {
	fractions := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			log.Printf("level=warn component=config msg=\"invalid scheme coverage entry; skipping\" entry=%q", pair)
			continue
		}
		scheme := strings.TrimSpace(parts[0])
		fraction, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || scheme == "" || fraction <= 0 || fraction > 1 {
			log.Printf("level=warn component=config msg=\"invalid scheme coverage entry; skipping\" entry=%q err=%v", pair, err)
			continue
		}
		fractions[scheme] = fraction
	}
	return fractions
}

func parseDepartments(raw string) []string {
	var departments []string
	for _, department := range strings.Split(raw, ",") {
		department = strings.TrimSpace(department)
		if department != "" {
			departments = append(departments, department)
		}
	}
	return departments
}
