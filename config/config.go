package config

import (
	"errors"
	"flag"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"
)

type Config struct {
	Addr          string
	DBUrl         string
	TokenSecret   string
	TokenTTL      time.Duration
	EmbedCacheTTL time.Duration
	Debug         bool
}

func ParseFlags() (cfg Config, err error) {
	var host string
	flag.StringVar(&host, "host", envOr("CANVASS_HOST", "0.0.0.0"), "listen host name (default 0.0.0.0)")
	var port uint
	flag.UintVar(&port, "port", uint(envOrInt("CANVASS_PORT", 80)), "listen port number (default 80)")
	flag.StringVar(&cfg.DBUrl, "db-url", envOr("CANVASS_DB_URL", "canvass.sqlite"), "path to SQLite3 DB file (default canvass.sqlite)")
	flag.StringVar(&cfg.TokenSecret, "token-secret", envOr("CANVASS_TOKEN_SECRET", ""), "secret key for token encryption and decryption")
	var ttl uint
	flag.UintVar(&ttl, "token-ttl", uint(envOrInt("CANVASS_TOKEN_TTL", 120)), "token TTL in seconds (default 120)")
	var embedTTL uint
	flag.UintVar(&embedTTL, "embed-cache-ttl", uint(envOrInt("CANVASS_EMBED_CACHE_TTL", 300)), "public cache lifetime of embed scripts in seconds (default 300)")
	flag.BoolVar(&cfg.Debug, "debug", os.Getenv("CANVASS_DEBUG") == "true", "log at DEBUG level")
	flag.Parse()

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second
	cfg.EmbedCacheTTL = time.Duration(embedTTL) * time.Second

	if cfg.TokenSecret == "" {
		err = errors.New("missing parameter -token-secret")
	}

	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
