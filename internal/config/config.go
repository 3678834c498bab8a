package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DeletePolicy 决定软删除时是否抹掉正文
type DeletePolicy string

const (
	// DeleteRetain 保留正文以备审计，可见性只由 status 决定，可恢复
	DeleteRetain DeletePolicy = "retain"
	// DeleteBlank 删除时清空正文，不可恢复
	DeleteBlank DeletePolicy = "blank"
)

type ServerConfig struct {
	Port string
	Mode string
	// TrustedProxies 只有来自这些地址的请求才采信 X-Forwarded-For，为空表示都不信
	TrustedProxies []string
}

type SessionConfig struct {
	Name   string
	Secret string
}

type GuestbookConfig struct {
	MaxDepth         int
	MaxContentLength int
	MaxLinks         int
	DeletePolicy     DeletePolicy
}

type RateLimitConfig struct {
	Window  time.Duration
	Ceiling int64
}

type ModerationConfig struct {
	StatsTTL time.Duration
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

type LogConfig struct {
	Level  string
	Format string
}

// Config 启动时加载一次，之后只读
type Config struct {
	Server      ServerConfig
	DatabaseURL string
	Session     SessionConfig
	AdminEmail  string
	SiteURL     string
	Guestbook   GuestbookConfig
	RateLimit   RateLimitConfig
	Moderation  ModerationConfig
	Google      GoogleConfig
	Log         LogConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.trusted_proxies", "")
	v.SetDefault("database.url", "host=localhost user=postgres password=postgres dbname=huixiang port=5432 sslmode=disable TimeZone=UTC")
	v.SetDefault("session.name", "huixiang_session")
	v.SetDefault("session.secret", "secret_key_change_me")
	v.SetDefault("admin.email", "")
	v.SetDefault("site.url", "http://localhost:8080")
	v.SetDefault("guestbook.max_depth", 5)
	v.SetDefault("guestbook.max_content_length", 5000)
	v.SetDefault("guestbook.max_links", 3)
	v.SetDefault("guestbook.delete_policy", string(DeleteRetain))
	v.SetDefault("ratelimit.window", "60s")
	v.SetDefault("ratelimit.ceiling", 5)
	v.SetDefault("moderation.stats_ttl", "5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Default 返回只包含默认值的配置，测试中使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := fromViper(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load 依次读取 .env、config.yaml 与环境变量。
// 环境变量覆盖配置文件中的同名设置，例如 ADMIN_EMAIL 覆盖 admin.email。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("未找到 .env 文件，将只读取系统环境变量")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 兼容部署环境里常见的变量名
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("server.port", "PORT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
		log.Println("未找到 config.yaml，使用默认值与环境变量")
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			Mode:           v.GetString("server.mode"),
			TrustedProxies: splitList(v.Get("server.trusted_proxies")),
		},
		DatabaseURL: v.GetString("database.url"),
		Session: SessionConfig{
			Name:   v.GetString("session.name"),
			Secret: v.GetString("session.secret"),
		},
		AdminEmail: NormalizeEmail(v.GetString("admin.email")),
		SiteURL:    strings.TrimSuffix(v.GetString("site.url"), "/"),
		Guestbook: GuestbookConfig{
			MaxDepth:         v.GetInt("guestbook.max_depth"),
			MaxContentLength: v.GetInt("guestbook.max_content_length"),
			MaxLinks:         v.GetInt("guestbook.max_links"),
			DeletePolicy:     DeletePolicy(strings.ToLower(v.GetString("guestbook.delete_policy"))),
		},
		RateLimit: RateLimitConfig{
			Window:  v.GetDuration("ratelimit.window"),
			Ceiling: v.GetInt64("ratelimit.ceiling"),
		},
		Moderation: ModerationConfig{
			StatsTTL: v.GetDuration("moderation.stats_ttl"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("google.client_id"),
			ClientSecret: v.GetString("google.client_secret"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if c.Guestbook.MaxDepth < 1 {
		return fmt.Errorf("guestbook.max_depth 必须 >= 1，当前为 %d", c.Guestbook.MaxDepth)
	}
	if c.Guestbook.MaxContentLength < 1 {
		return fmt.Errorf("guestbook.max_content_length 必须 >= 1")
	}
	if c.Guestbook.MaxLinks < 0 {
		return fmt.Errorf("guestbook.max_links 不能为负数")
	}
	switch c.Guestbook.DeletePolicy {
	case DeleteRetain, DeleteBlank:
	default:
		return fmt.Errorf("未知的 guestbook.delete_policy: %q", c.Guestbook.DeletePolicy)
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Ceiling < 1 {
		return fmt.Errorf("ratelimit.window 与 ratelimit.ceiling 必须为正数")
	}
	return nil
}

// NormalizeEmail 统一邮箱大小写与空白，管理员比对只用这个结果
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// splitList 配置文件里可以写列表，环境变量里写逗号分隔的字符串
func splitList(raw interface{}) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []string:
		parts = v
	case []interface{}:
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
