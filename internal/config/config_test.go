package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allEnvVars = []string{
	"HOST", "PORT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "ENVIRONMENT",
	"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE", "DB_SQLITE_PATH",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME", "DB_LOG_LEVEL",
	"REDIS_ENABLED", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"REDIS_MIN_IDLE_CONNS", "REDIS_MAX_RETRIES", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"REDIS_KEY_PREFIX", "CACHE_L1_MAX_ENTRIES", "CACHE_L1_TTL", "CACHE_TASK_TTL",
	"WORKER_CONCURRENCY", "WORKER_POLL_INTERVAL", "WORKER_QUEUES", "WORKER_MAX_RETRIES",
	"JWT_SECRET", "JWT_ISSUER", "ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL", "BCRYPT_COST",
	"SIGN_UP_ENABLED", "SESSION_RESOLVE_TIMEOUT", "SESSION_LOOKUP_TIMEOUT", "SESSION_COOKIE", "SESSION_COOKIE_SECURE",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "RATE_LIMIT_BURST", "RATE_LIMIT_CLEANUP",
	"CORS_ALLOWED_ORIGINS", "CORS_MAX_AGE", "LOCALE", "TIMEZONE",
}

func setEnvVars(t *testing.T, vars map[string]string) {
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func clearEnvVars(t *testing.T) {
	for _, k := range allEnvVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with default config, got: %v", err)
	}

	if config.Server.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got %s", config.Server.Host)
	}
	if config.Server.Port != "8080" {
		t.Errorf("Expected default port '8080', got %s", config.Server.Port)
	}
	if config.Server.Environment != "development" {
		t.Errorf("Expected default environment 'development', got %s", config.Server.Environment)
	}
	if config.Database.Driver != "postgres" {
		t.Errorf("Expected default DB driver 'postgres', got %s", config.Database.Driver)
	}
	if config.Database.Name != "taskflow" {
		t.Errorf("Expected default DB name 'taskflow', got %s", config.Database.Name)
	}
	if config.Database.MaxOpenConns != 25 {
		t.Errorf("Expected default max open conns 25, got %d", config.Database.MaxOpenConns)
	}
	if !config.Redis.Enabled {
		t.Error("Expected Redis to be enabled by default")
	}
	if config.Redis.KeyPrefix != "taskflow:" {
		t.Errorf("Expected default Redis key prefix 'taskflow:', got %s", config.Redis.KeyPrefix)
	}
	if config.Cache.TaskTTL != 10*time.Minute {
		t.Errorf("Expected default task TTL 10m, got %v", config.Cache.TaskTTL)
	}
	if len(config.Worker.Queues) != 2 || config.Worker.Queues[0] != "reminders" {
		t.Errorf("Expected default queues [reminders default], got %v", config.Worker.Queues)
	}
	if config.Auth.BCryptCost != 10 {
		t.Errorf("Expected default bcrypt cost 10, got %d", config.Auth.BCryptCost)
	}
	if config.Auth.Issuer != "taskflow" {
		t.Errorf("Expected default issuer 'taskflow', got %s", config.Auth.Issuer)
	}
	if !config.Auth.SignUpEnabled {
		t.Error("Expected sign-up to be enabled by default")
	}
	if config.Auth.SessionResolveTimeout != 2*time.Second {
		t.Errorf("Expected default resolve timeout 2s, got %v", config.Auth.SessionResolveTimeout)
	}
	if config.Auth.SessionLookupTimeout <= config.Auth.SessionResolveTimeout {
		t.Errorf("Expected lookup timeout %v to outlast the resolve wait", config.Auth.SessionLookupTimeout)
	}
	if config.Auth.CookieName != "taskflow_session" {
		t.Errorf("Expected default cookie name 'taskflow_session', got %s", config.Auth.CookieName)
	}
	if !config.RateLimit.Enabled {
		t.Error("Expected rate limiting to be enabled by default")
	}
	if len(config.CORS.AllowedOrigins) != 1 {
		t.Errorf("Expected one default CORS origin, got %v", config.CORS.AllowedOrigins)
	}
	if config.Locale.Language != "pt-BR" {
		t.Errorf("Expected default language 'pt-BR', got %s", config.Locale.Language)
	}
}

func TestLoadConfig_CustomEnvironment(t *testing.T) {
	clearEnvVars(t)
	setEnvVars(t, map[string]string{
		"HOST":                    "0.0.0.0",
		"PORT":                    "9000",
		"ENVIRONMENT":             "production",
		"DB_HOST":                 "db.example.com",
		"DB_PASSWORD":             "secure_password",
		"DB_MAX_OPEN_CONNS":       "50",
		"REDIS_HOST":              "redis.example.com",
		"REDIS_DB":                "1",
		"WORKER_CONCURRENCY":      "8",
		"WORKER_QUEUES":           "reminders, urgent ,",
		"JWT_SECRET":              "super-secret-key",
		"SIGN_UP_ENABLED":         "false",
		"SESSION_RESOLVE_TIMEOUT": "500ms",
		"RATE_LIMIT_ENABLED":      "false",
		"CORS_ALLOWED_ORIGINS":    "https://app.example.com,https://admin.example.com",
		"ACCESS_TOKEN_TTL":        "30m",
		"TIMEZONE":                "UTC",
	})

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with custom config, got: %v", err)
	}

	if config.GetServerAddr() != "0.0.0.0:9000" {
		t.Errorf("Expected server addr '0.0.0.0:9000', got %s", config.GetServerAddr())
	}
	if !config.IsProduction() {
		t.Error("Expected production environment")
	}
	if config.Database.MaxOpenConns != 50 {
		t.Errorf("Expected max open conns 50, got %d", config.Database.MaxOpenConns)
	}
	if config.Redis.DB != 1 {
		t.Errorf("Expected Redis DB 1, got %d", config.Redis.DB)
	}
	if config.Worker.Concurrency != 8 {
		t.Errorf("Expected worker concurrency 8, got %d", config.Worker.Concurrency)
	}
	if len(config.Worker.Queues) != 2 || config.Worker.Queues[1] != "urgent" {
		t.Errorf("Expected trimmed queue list, got %v", config.Worker.Queues)
	}
	if config.Auth.SignUpEnabled {
		t.Error("Expected sign-up to be disabled")
	}
	if config.Auth.SessionResolveTimeout != 500*time.Millisecond {
		t.Errorf("Expected resolve timeout 500ms, got %v", config.Auth.SessionResolveTimeout)
	}
	if config.RateLimit.Enabled {
		t.Error("Expected rate limiting to be disabled")
	}
	if len(config.CORS.AllowedOrigins) != 2 {
		t.Errorf("Expected two CORS origins, got %v", config.CORS.AllowedOrigins)
	}
	if config.Auth.AccessTokenTTL != 30*time.Minute {
		t.Errorf("Expected access token TTL 30m, got %v", config.Auth.AccessTokenTTL)
	}
	if config.Location() != time.UTC {
		t.Errorf("Expected UTC location, got %v", config.Location())
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	clearEnvVars(t)

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "PORT=7070\nDB_DRIVER=sqlite\nDB_SQLITE_PATH=/tmp/tf.db\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("DB_DRIVER")
		os.Unsetenv("DB_SQLITE_PATH")
	})
	t.Setenv("PORT", "6060")

	config, err := LoadConfig(envFile, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("Expected env file to load, got: %v", err)
	}

	if config.Server.Port != "6060" {
		t.Errorf("Expected process env to win over file, got port %s", config.Server.Port)
	}
	if config.Database.Driver != "sqlite" {
		t.Errorf("Expected driver from file, got %s", config.Database.Driver)
	}
	if config.GetDatabaseDSN() != "/tmp/tf.db" {
		t.Errorf("Expected sqlite DSN to be the file path, got %s", config.GetDatabaseDSN())
	}
}

func TestLoadConfig_ProductionValidation(t *testing.T) {
	clearEnvVars(t)
	setEnvVars(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  "secure-jwt-secret",
	})

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("Expected error for missing database password in production")
	}
	if err.Error() != "database password is required in production" {
		t.Errorf("Expected specific error message, got: %v", err)
	}
}

func TestLoadConfig_ProductionJWTValidation(t *testing.T) {
	clearEnvVars(t)
	setEnvVars(t, map[string]string{
		"ENVIRONMENT": "production",
		"DB_PASSWORD": "secure-db-password",
	})

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("Expected error for default JWT secret in production")
	}
	if err.Error() != "JWT secret must be set in production" {
		t.Errorf("Expected specific error message, got: %v", err)
	}
}

func TestConfigValidation_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		hasError bool
	}{
		{
			name: "Production with all required fields",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
				"DB_PASSWORD": "secure-password",
				"JWT_SECRET":  "secure-jwt-secret",
			},
		},
		{
			name: "Production sqlite needs no database password",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
				"DB_DRIVER":   "sqlite",
				"JWT_SECRET":  "secure-jwt-secret",
			},
		},
		{
			name:     "Unknown driver",
			envVars:  map[string]string{"DB_DRIVER": "mysql"},
			hasError: true,
		},
		{
			name:     "Unknown timezone",
			envVars:  map[string]string{"TIMEZONE": "Mars/Olympus"},
			hasError: true,
		},
		{
			name:    "Staging environment (not production)",
			envVars: map[string]string{"ENVIRONMENT": "staging"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			setEnvVars(t, tt.envVars)

			config, err := LoadConfig()

			if tt.hasError {
				if err == nil {
					t.Errorf("Expected error, but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
			if config == nil {
				t.Error("Expected config to be loaded")
			}
		})
	}
}

func TestConfig_GetDatabaseDSN(t *testing.T) {
	config := &Config{
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     "5432",
			User:     "testuser",
			Password: "testpass",
			Name:     "testdb",
			SSLMode:  "require",
		},
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=require"
	if actual := config.GetDatabaseDSN(); actual != expected {
		t.Errorf("Expected DSN '%s', got '%s'", expected, actual)
	}
}

func TestConfig_GetRedisAddr(t *testing.T) {
	config := &Config{Redis: RedisConfig{Host: "redis.example.com", Port: "6380"}}

	if actual := config.GetRedisAddr(); actual != "redis.example.com:6380" {
		t.Errorf("Expected Redis addr 'redis.example.com:6380', got '%s'", actual)
	}
}

func TestConfig_LocationFallback(t *testing.T) {
	config := &Config{Locale: LocaleConfig{Timezone: "Nowhere/Void"}}

	if config.Location() != time.UTC {
		t.Errorf("Expected UTC fallback, got %v", config.Location())
	}
}

func TestGetEnvAsBool(t *testing.T) {
	key := "TEST_BOOL_VAR"
	defaultValue := true

	testCases := []struct {
		value    string
		expected bool
	}{
		{"", defaultValue},
		{"true", true},
		{"false", false},
		{"1", true},
		{"0", false},
		{"invalid", defaultValue},
	}

	for _, tc := range testCases {
		t.Setenv(key, tc.value)
		if result := getEnvAsBool(key, defaultValue); result != tc.expected {
			t.Errorf("For value '%s', expected %v, got %v", tc.value, tc.expected, result)
		}
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	key := "TEST_DURATION_VAR"
	defaultValue := 30 * time.Second

	t.Setenv(key, "5m")
	if result := getEnvAsDuration(key, defaultValue); result != 5*time.Minute {
		t.Errorf("Expected env value 5m, got %v", result)
	}

	t.Setenv(key, "not-a-duration")
	if result := getEnvAsDuration(key, defaultValue); result != defaultValue {
		t.Errorf("Expected default value %v for invalid duration, got %v", defaultValue, result)
	}
}

func TestGetEnvAsList(t *testing.T) {
	key := "TEST_LIST_VAR"
	defaultValue := []string{"a"}

	t.Setenv(key, " , ")
	if result := getEnvAsList(key, defaultValue); len(result) != 1 || result[0] != "a" {
		t.Errorf("Expected default for blank list, got %v", result)
	}

	t.Setenv(key, "x,y")
	if result := getEnvAsList(key, defaultValue); len(result) != 2 || result[1] != "y" {
		t.Errorf("Expected [x y], got %v", result)
	}
}

func BenchmarkLoadConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := LoadConfig(); err != nil {
			b.Fatalf("Failed to load config: %v", err)
		}
	}
}
