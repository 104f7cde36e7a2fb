package config

import (
	"strings"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	Server struct {
		Port string `env:"PORT" envDefault:"5250"`

		// Comma separated list, "*" allows every origin
		AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

		LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	}

	Database struct {
		// Path of the sqlite file holding every user document
		Path string `env:"DATABASE_PATH" envDefault:"database/tasaciones.db"`

		// Buffered change batches; overflow is coalesced into a backlog
		FeedBufferSize int `env:"FEED_BUFFER_SIZE" envDefault:"256"`
	}

	Sessions struct {
		// Anonymous sessions kept in memory before the least recently used
		// one is closed. 0 disables the cap.
		MaxAnonymous int `env:"SESSION_MAX_ANONYMOUS" envDefault:"1000"`
	}

	Writer struct {
		// Pending background writes per session
		QueueSize int `env:"WRITER_QUEUE_SIZE" envDefault:"64"`
	}

	Auth struct {
		// HMAC secret used to verify identity tokens. Empty means every
		// request is treated as anonymous.
		JWTSecret string `env:"AUTH_JWT_SECRET"`
	}

	ImageKit struct {
		PrivateKey  string `env:"IMAGEKIT_PRIVATE_KEY"`
		PublicKey   string `env:"IMAGEKIT_PUBLIC_KEY"`
		URLEndpoint string `env:"IMAGEKIT_URL_ENDPOINT"`

		// Frontend builds export the same values with a VITE_ prefix
		VitePrivateKey  string `env:"VITE_IMAGEKIT_PRIVATE_KEY"`
		VitePublicKey   string `env:"VITE_IMAGEKIT_PUBLIC_KEY"`
		ViteURLEndpoint string `env:"VITE_IMAGEKIT_URL_ENDPOINT"`
	}

	Sheets struct {
		BaseURL string `env:"SHEETS_BASE_URL" envDefault:"https://docs.google.com/spreadsheets/d"`
	}

	Geocoding struct {
		Enabled  bool   `env:"GEOCODING_ENABLED" envDefault:"false"`
		Country  string `env:"GEOCODING_COUNTRY" envDefault:"ar"`
		CacheDir string `env:"GEOCODING_CACHE_DIR"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ImageKitKeys returns the private key, public key and URL endpoint, falling
// back to the VITE_ prefixed variables and stripping stray quotes.
func (c *Config) ImageKitKeys() (privateKey, publicKey, urlEndpoint string) {
	privateKey = firstNonEmpty(c.ImageKit.PrivateKey, c.ImageKit.VitePrivateKey)
	publicKey = firstNonEmpty(c.ImageKit.VitePublicKey, c.ImageKit.PublicKey)
	urlEndpoint = firstNonEmpty(c.ImageKit.ViteURLEndpoint, c.ImageKit.URLEndpoint)
	return unquote(privateKey), unquote(publicKey), unquote(urlEndpoint)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func unquote(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}
