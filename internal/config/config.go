package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"log"
	"os"
	"time"
)

type Config struct {
	// DevToolsURL maps to DEVTOOLS_URL. Empty means launch our own browser.
	DevToolsURL string `envconfig:"DEVTOOLS_URL"`

	// DownloadDir maps to DOWNLOAD_DIR. Empty leaves downloads to the browser.
	DownloadDir string `envconfig:"DOWNLOAD_DIR"`

	// Headless maps to HEADLESS. Only used when launching.
	Headless bool `envconfig:"HEADLESS" default:"false"`

	// StartURL maps to START_URL. Opened in a launched browser.
	StartURL string `envconfig:"START_URL" default:"about:blank"`

	// DatabaseURL maps to DB_URL. Optional; setting it turns on the capture archive.
	DatabaseURL string `envconfig:"DB_URL"`

	// ArchiveBatchSize maps to ARCHIVE_BATCH_SIZE.
	ArchiveBatchSize int `envconfig:"ARCHIVE_BATCH_SIZE" default:"20"`

	// ArchiveFlush maps to ARCHIVE_FLUSH.
	ArchiveFlush time.Duration `envconfig:"ARCHIVE_FLUSH" default:"2s"`
}

// Load processes environment variables and populates the Config struct.
func Load() (*Config, error) {
	// A missing .env is normal; only complain if one exists and is broken.
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			log.Printf("Warning: .env file found but could not be loaded: %v", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ArchiveEnabled reports whether captures should be recorded to the database.
func (c *Config) ArchiveEnabled() bool {
	return c.DatabaseURL != ""
}
