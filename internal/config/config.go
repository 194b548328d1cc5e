// Package config содержит логику чтения конфигурации сервиса promobox.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса promobox.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	ShopSystemAddress string `env:"SHOP_SYSTEM_ADDRESS"`
	AdminLogin        string `env:"ADMIN_LOGIN"`
	AdminPassword     string `env:"ADMIN_PASSWORD"`
	AuthSecret        string `env:"AUTH_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envShopAddress := cfg.ShopSystemAddress
	envAdminLogin := cfg.AdminLogin
	envAdminPassword := cfg.AdminPassword
	envAuthSecret := cfg.AuthSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ShopSystemAddress, "r", "", "shop system address")
	flag.StringVar(&cfg.AdminLogin, "l", "admin", "admin login")
	flag.StringVar(&cfg.AdminPassword, "p", "", "admin password")
	flag.StringVar(&cfg.AuthSecret, "s", "promobox-secret", "secret key for admin session cookie")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envShopAddress != "" {
		cfg.ShopSystemAddress = envShopAddress
	}
	if envAdminLogin != "" {
		cfg.AdminLogin = envAdminLogin
	}
	if envAdminPassword != "" {
		cfg.AdminPassword = envAdminPassword
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
