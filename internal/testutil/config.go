package testutil

import (
	"os"
	"strconv"
	"testing"
)

const (
	// EnvPostgresDSN enables the Postgres cache store tests.
	EnvPostgresDSN = "MLTRENDS_TEST_PG_DSN"
	// EnvLive enables tests that call the real marketplace.
	EnvLive = "MLTRENDS_LIVE"
	// EnvSite overrides the site used by live tests.
	EnvSite = "MLTRENDS_TEST_SITE"

	DefaultTestSite = "MLA"
)

// GetTestEnv returns an environment variable or defaultValue when unset.
func GetTestEnv(envVar, defaultValue string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultValue
}

// RequirePostgres returns the test DSN or skips t.
func RequirePostgres(t testing.TB) string {
	t.Helper()
	dsn := os.Getenv(EnvPostgresDSN)
	if dsn == "" {
		t.Skipf("Skipping Postgres test: %s not set", EnvPostgresDSN)
	}
	return dsn
}

// LiveEnabled reports whether live network tests were requested.
func LiveEnabled() bool {
	enabled, _ := strconv.ParseBool(os.Getenv(EnvLive))
	return enabled
}

// SkipUnlessLive skips t unless live network tests were requested.
func SkipUnlessLive(t testing.TB) {
	t.Helper()
	if !LiveEnabled() {
		t.Skipf("Skipping live test: set %s=true to run", EnvLive)
	}
}

// TestSite returns the site code live tests run against.
func TestSite() string {
	return GetTestEnv(EnvSite, DefaultTestSite)
}
