package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_DefaultCoverageTable(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SCHEME_COVERAGE_TABLE")
	unsetEnvWithCleanup(t, "DEFAULT_COVERAGE_FRACTION")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	expected := map[string]float64{"CGHS": 0.90, "ECHS": 0.85, "Railways": 0.80}
	for scheme, fraction := range expected {
		if cfg.CoverageFractions[scheme] != fraction {
			t.Fatalf("expected %s fraction %f, got %f", scheme, fraction, cfg.CoverageFractions[scheme])
		}
	}
	if cfg.DefaultCoverageFraction != 0.70 {
		t.Fatalf("expected default fraction 0.70, got %f", cfg.DefaultCoverageFraction)
	}
}

func TestLoadConfig_CoverageTableFromEnvSkipsMalformedEntries(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SCHEME_COVERAGE_TABLE", "CGHS:0.95, Broken, ESIC:0.75, Bad:2.0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.CoverageFractions) != 2 {
		t.Fatalf("expected 2 valid entries, got %d (%v)", len(cfg.CoverageFractions), cfg.CoverageFractions)
	}
	if cfg.CoverageFractions["CGHS"] != 0.95 || cfg.CoverageFractions["ESIC"] != 0.75 {
		t.Fatalf("expected overrides parsed, got %v", cfg.CoverageFractions)
	}
}

func TestLoadConfig_MandatoryDepartmentsParsedAndTrimmed(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "MANDATORY_DEPARTMENTS", " ICU , Emergency ,,NICU")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := []string{"ICU", "Emergency", "NICU"}
	if len(cfg.DepartmentList) != len(expected) {
		t.Fatalf("expected %d departments, got %v", len(expected), cfg.DepartmentList)
	}
	for i, department := range expected {
		if cfg.DepartmentList[i] != department {
			t.Fatalf("expected department %q at %d, got %q", department, i, cfg.DepartmentList[i])
		}
	}
}

func TestLoadConfig_RankingAndRetryDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "AGING_THRESHOLD_DAYS")
	unsetEnvWithCleanup(t, "SMALL_AMOUNT_THRESHOLD_PAISE")
	unsetEnvWithCleanup(t, "CONFLICT_RETRY_ATTEMPTS")
	unsetEnvWithCleanup(t, "GATEWAY_TIMEOUT_SECONDS")
	unsetEnvWithCleanup(t, "QUEUE_CACHE_TTL_SECONDS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AgingThresholdDays != 30 {
		t.Fatalf("expected aging threshold 30 days, got %d", cfg.AgingThresholdDays)
	}
	if cfg.SmallAmountThreshold != 500000 {
		t.Fatalf("expected small amount threshold 500000 paise, got %d", cfg.SmallAmountThreshold)
	}
	if cfg.ConflictRetryAttempts != 3 {
		t.Fatalf("expected 3 conflict retries, got %d", cfg.ConflictRetryAttempts)
	}
	if cfg.GatewayTimeoutSeconds != 10 {
		t.Fatalf("expected 10s gateway timeout, got %d", cfg.GatewayTimeoutSeconds)
	}
	if cfg.QueueCacheTTLSeconds != 30 {
		t.Fatalf("expected 30s queue cache TTL, got %d", cfg.QueueCacheTTLSeconds)
	}
}

func TestLoadConfig_OutOfRangeDefaultFractionFallsBack(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "DEFAULT_COVERAGE_FRACTION", "1.8")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DefaultCoverageFraction != 0.70 {
		t.Fatalf("expected fallback to 0.70, got %f", cfg.DefaultCoverageFraction)
	}
}

func TestLoadConfig_PortOverrideWins(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected platform PORT to win, got %q", cfg.ServerPort)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
