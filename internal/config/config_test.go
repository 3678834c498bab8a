package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5, cfg.Guestbook.MaxDepth)
	assert.Equal(t, 5000, cfg.Guestbook.MaxContentLength)
	assert.Equal(t, 3, cfg.Guestbook.MaxLinks)
	assert.Equal(t, DeleteRetain, cfg.Guestbook.DeletePolicy)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, int64(5), cfg.RateLimit.Ceiling)
}

func TestFromViperNormalizesAdminEmail(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("admin.email", "  Boss@Example.COM ")
	v.Set("site.url", "https://example.com/")

	cfg, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "boss@example.com", cfg.AdminEmail)
	assert.Equal(t, "https://example.com", cfg.SiteURL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"depth":   func(c *Config) { c.Guestbook.MaxDepth = 0 },
		"policy":  func(c *Config) { c.Guestbook.DeletePolicy = "shred" },
		"ceiling": func(c *Config) { c.RateLimit.Ceiling = 0 },
		"window":  func(c *Config) { c.RateLimit.Window = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestTrustedProxies(t *testing.T) {
	assert.Empty(t, Default().Server.TrustedProxies)

	v := viper.New()
	setDefaults(v)
	v.Set("server.trusted_proxies", " 10.0.0.1, 172.16.0.0/12 ,")
	cfg, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.Server.TrustedProxies)

	v.Set("server.trusted_proxies", []interface{}{"127.0.0.1"})
	cfg, err = fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.Server.TrustedProxies)
}
