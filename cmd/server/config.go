package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
)

// Config holds all configuration options
type Config struct {
	// Server config
	Port      string   `long:"port" env:"PORT" default:"8443" description:"Server port"`
	AdminFqdn string   `long:"admin-fqdn" env:"ADMIN_FQDN" default:"localhost:8443" description:"Public FQDN serving the signin and admin frontend"`
	RPOrigins []string `long:"rp-origin" env:"RP_ORIGIN" env-delim:"," default:"https://localhost:8443" description:"Relying party origins"`

	// TokenSecret signs the stateless signin tokens. Leave empty to
	// generate an ephemeral one at startup.
	TokenSecret string `long:"token-secret" env:"TOKEN_SECRET" description:"HMAC secret for stateless signin tokens"`

	// Storage config
	DirectoryMode string `long:"directory-mode" env:"DIRECTORY_MODE" default:"filesystem" choice:"memory" choice:"filesystem" choice:"s3" description:"Directory storage backend"`
	StateMode     string `long:"state-mode" env:"STATE_MODE" default:"memory" choice:"memory" choice:"redis" description:"Session and ceremony state backend"`

	// Filesystem storage
	DataPath string `long:"data-path" env:"DATA_PATH" default:"./data" description:"Filesystem storage directory"`

	// Seed file applied to the directory at startup
	SeedFile string `long:"seed-file" env:"SEED_FILE" description:"YAML seed file for users and backends"`

	// S3 storage
	S3 struct {
		Endpoint  string `long:"s3-endpoint" env:"S3_ENDPOINT" default:"localhost:9000" description:"S3 endpoint (host:port)"`
		Bucket    string `long:"s3-bucket" env:"S3_BUCKET" default:"uebergang" description:"S3 bucket name"`
		AccessKey string `long:"s3-access-key" env:"S3_ACCESS_KEY" default:"minioadmin" description:"S3 access key"`
		SecretKey string `long:"s3-secret-key" env:"S3_SECRET_KEY" default:"minioadmin" description:"S3 secret key"`
		UseSSL    bool   `long:"s3-use-ssl" env:"S3_USE_SSL" description:"Use SSL for S3 connections"`
	} `group:"S3 Storage Options"`

	// Redis config
	Redis struct {
		Addr     string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address"`
		Password string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
		DB       int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`
	} `group:"Redis Options"`
}

// RPID is the WebAuthn relying party id: the admin FQDN without a port.
func (c *Config) RPID() string {
	return strings.Split(c.AdminFqdn, ":")[0]
}

// LoadConfig parses configuration from environment variables and command line flags
func LoadConfig() (*Config, error) {
	var config Config

	parser := flags.NewParser(&config, flags.Default)
	parser.Usage = "[OPTIONS]"

	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}
