// Package config содержит логику чтения конфигурации сервиса.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

const defaultMaxPackageDoses = 10

// Config содержит параметры конфигурации сервиса учёта вакцинных закупок.
type Config struct {
	RunAddress      string `env:"RUN_ADDRESS"`
	DatabaseURI     string `env:"DATABASE_URI"`
	CatalogAddress  string `env:"CATALOG_ADDRESS"`
	AuthSecret      string `env:"AUTH_SECRET"`
	MaxPackageDoses int    `env:"MAX_PACKAGE_DOSES"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envCatalogAddress := cfg.CatalogAddress
	envAuthSecret := cfg.AuthSecret
	envMaxPackageDoses := cfg.MaxPackageDoses

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.CatalogAddress, "c", "", "vaccine catalog address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "staff token signing secret")
	flag.IntVar(&cfg.MaxPackageDoses, "m", defaultMaxPackageDoses, "maximum doses per purchase package")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envCatalogAddress != "" {
		cfg.CatalogAddress = envCatalogAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envMaxPackageDoses != 0 {
		cfg.MaxPackageDoses = envMaxPackageDoses
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.MaxPackageDoses <= 0 {
		cfg.MaxPackageDoses = defaultMaxPackageDoses
	}

	return cfg, nil
}
