package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp switches to an empty temp directory so no stray config.yaml or
// .env is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() {
		_ = os.Chdir(originalDir)
	})
	return tmpDir
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := chdirTemp(t)

	yamlContent := `
port: "5000"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
redis:
  host: "redis.example.com"
  port: 6380
geo:
  nearby_radius_meters: 5000
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(yamlContent), 0o644))

	os.Unsetenv("PGHOST")
	os.Unsetenv("BASE_URL")
	t.Setenv("PORT", "6000")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load("test-version")
	require.NoError(t, err)

	assert.Equal(t, "6000", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "http://localhost:6000", cfg.BaseURL)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, "redis.example.com:6380", cfg.Redis.Addr())
	assert.Equal(t, 5000.0, cfg.Geo.NearbyRadiusMeters)
	assert.Equal(t, 50000.0, cfg.Geo.MaxRadiusMeters)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
}

func TestLoad_EnvOnlyWhenNoConfigFile(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("JWT_TOKEN_TTL", "2h")

	cfg, err := Load("dev")
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10000.0, cfg.Geo.NearbyRadiusMeters)
	assert.Equal(t, 64, cfg.Broadcast.ClientBufferSize)
	assert.Equal(t, "", cfg.Redis.Addr())
	assert.Len(t, cfg.AllowedOrigins, 2)
}

func TestLoad_DotEnvFile(t *testing.T) {
	tmpDir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("JWT_SECRET=from-dotenv\n"), 0o644))

	os.Unsetenv("JWT_SECRET")
	t.Cleanup(func() { os.Unsetenv("JWT_SECRET") })

	cfg, err := Load("dev")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.JWTSecret)
}

func TestLoad_RequiresSigningMaterialWhenVerifying(t *testing.T) {
	chdirTemp(t)

	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("JWKS_ENDPOINTS")
	t.Setenv("AUTH_ENABLE_VERIFICATION", "true")

	_, err := Load("dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Auth:      AuthConfig{EnableVerification: false, TokenTTL: time.Hour},
			Geo:       GeoConfig{NearbyRadiusMeters: 10000, MaxRadiusMeters: 50000},
			Broadcast: BroadcastConfig{ClientBufferSize: 8},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, false},
		{"zero radius", func(c *Config) { c.Geo.NearbyRadiusMeters = 0 }, false},
		{"max below default", func(c *Config) { c.Geo.MaxRadiusMeters = 100 }, false},
		{"zero buffer", func(c *Config) { c.Broadcast.ClientBufferSize = 0 }, false},
		{"jwks only", func(c *Config) {
			c.Auth.EnableVerification = true
			c.Auth.JWKSEndpoints = map[string]string{"https://idp": "https://idp/jwks.json"}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParseJWKSEndpoints(t *testing.T) {
	got := parseJWKSEndpoints("https://a=https://a/jwks.json?x=1, https://b=https://b/jwks.json,garbage")
	assert.Equal(t, map[string]string{
		"https://a": "https://a/jwks.json?x=1",
		"https://b": "https://b/jwks.json",
	}, got)
	assert.Empty(t, parseJWKSEndpoints(""))
}

func TestDatabaseConfig_URL(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "hh", Password: "p@ss", Database: "harvest", SSLMode: "disable"}
	assert.Equal(t, "postgres://hh:p%40ss@db:5433/harvest?sslmode=disable", c.URL())
	assert.Equal(t, "host=db port=5433 user=hh password=p@ss dbname=harvest sslmode=disable", c.ConnectionString())
}
