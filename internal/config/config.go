// Package config loads relay configuration from the environment, optionally
// layered over a TOML file. Environment variables always win.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every option the relay recognizes. Which options are required
// depends on the command: Serve, Publish, and Tail have their own Validate
// methods so a missing option is reported with the variable name before any
// connection is attempted.
type Config struct {
	HTTPAddr string `toml:"http_addr"` // RELAY_HTTP_ADDR (default ":8080")
	NATSURL  string `toml:"nats_url"`  // RELAY_NATS_URL
	BusKey   string `toml:"bus_key"`   // RELAY_BUS_KEY (ingest access key)
	BusURL   string `toml:"bus_url"`   // RELAY_BUS_URL (gateway websocket URL)

	// Document store (external collaborator, consumed over REST).
	DocstoreEndpoint string `toml:"docstore_endpoint"` // RELAY_DOCSTORE_ENDPOINT
	DocstoreProject  string `toml:"docstore_project"`  // RELAY_DOCSTORE_PROJECT
	DocstoreKey      string `toml:"docstore_key"`      // RELAY_DOCSTORE_KEY
	DatabaseID       string `toml:"database_id"`       // RELAY_DATABASE_ID
	PostsCollection  string `toml:"posts_collection"`  // RELAY_POSTS_COLLECTION
	VotesCollection  string `toml:"votes_collection"`  // RELAY_VOTES_COLLECTION

	// Event journal (optional; empty = journal disabled).
	DatabaseURL string `toml:"database_url"` // RELAY_DATABASE_URL

	// Journal snapshot export (optional; bucket empty = export disabled).
	ExportS3Bucket   string        `toml:"export_s3_bucket"`   // RELAY_EXPORT_S3_BUCKET
	ExportS3Key      string        `toml:"export_s3_key"`      // RELAY_EXPORT_S3_KEY (default "relay/events.jsonl")
	ExportS3Region   string        `toml:"export_s3_region"`   // RELAY_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Endpoint string        `toml:"export_s3_endpoint"` // RELAY_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportInterval   time.Duration `toml:"-"`                  // RELAY_EXPORT_INTERVAL (default 3m; 0 = disabled)
}

// Load reads configuration from the optional TOML file at path (or the file
// named by RELAY_CONFIG when path is empty), then overlays environment
// variables. A missing file is only an error when it was named explicitly.
func Load(path string) (*Config, error) {
	c := &Config{}

	explicit := path != ""
	if path == "" {
		path = os.Getenv("RELAY_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			if !os.IsNotExist(err) || explicit {
				return nil, fmt.Errorf("config file %s: %w", path, err)
			}
		}
	}

	overlay(&c.HTTPAddr, "RELAY_HTTP_ADDR")
	overlay(&c.NATSURL, "RELAY_NATS_URL")
	overlay(&c.BusKey, "RELAY_BUS_KEY")
	overlay(&c.BusURL, "RELAY_BUS_URL")
	overlay(&c.DocstoreEndpoint, "RELAY_DOCSTORE_ENDPOINT")
	overlay(&c.DocstoreProject, "RELAY_DOCSTORE_PROJECT")
	overlay(&c.DocstoreKey, "RELAY_DOCSTORE_KEY")
	overlay(&c.DatabaseID, "RELAY_DATABASE_ID")
	overlay(&c.PostsCollection, "RELAY_POSTS_COLLECTION")
	overlay(&c.VotesCollection, "RELAY_VOTES_COLLECTION")
	overlay(&c.DatabaseURL, "RELAY_DATABASE_URL")
	overlay(&c.ExportS3Bucket, "RELAY_EXPORT_S3_BUCKET")
	overlay(&c.ExportS3Key, "RELAY_EXPORT_S3_KEY")
	overlay(&c.ExportS3Region, "RELAY_EXPORT_S3_REGION")
	overlay(&c.ExportS3Endpoint, "RELAY_EXPORT_S3_ENDPOINT")

	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.ExportS3Key == "" {
		c.ExportS3Key = "relay/events.jsonl"
	}
	if c.ExportS3Region == "" {
		c.ExportS3Region = "us-east-1"
	}

	intervalStr := envOrDefault("RELAY_EXPORT_INTERVAL", "3m")
	d, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("RELAY_EXPORT_INTERVAL: %w", err)
	}
	c.ExportInterval = d

	return c, nil
}

// ValidateServe checks the options the broadcast server requires.
func (c *Config) ValidateServe() error {
	return c.require(map[string]string{
		"RELAY_NATS_URL": c.NATSURL,
		"RELAY_BUS_KEY":  c.BusKey,
	})
}

// ValidatePublish checks the options one Change Publisher invocation requires.
func (c *Config) ValidatePublish() error {
	return c.require(map[string]string{
		"RELAY_BUS_URL":           c.BusURL,
		"RELAY_BUS_KEY":           c.BusKey,
		"RELAY_DOCSTORE_ENDPOINT": c.DocstoreEndpoint,
		"RELAY_DOCSTORE_PROJECT":  c.DocstoreProject,
		"RELAY_DOCSTORE_KEY":      c.DocstoreKey,
		"RELAY_DATABASE_ID":       c.DatabaseID,
		"RELAY_POSTS_COLLECTION":  c.PostsCollection,
		"RELAY_VOTES_COLLECTION":  c.VotesCollection,
	})
}

// ValidateTail checks the options the tail command requires.
func (c *Config) ValidateTail() error {
	return c.require(map[string]string{
		"RELAY_NATS_URL": c.NATSURL,
	})
}

// require returns an error naming the first missing option, in stable order.
func (c *Config) require(opts map[string]string) error {
	// Deterministic order so error messages are stable.
	order := []string{
		"RELAY_HTTP_ADDR", "RELAY_NATS_URL", "RELAY_BUS_URL", "RELAY_BUS_KEY",
		"RELAY_DOCSTORE_ENDPOINT", "RELAY_DOCSTORE_PROJECT", "RELAY_DOCSTORE_KEY",
		"RELAY_DATABASE_ID", "RELAY_POSTS_COLLECTION", "RELAY_VOTES_COLLECTION",
	}
	for _, name := range order {
		if v, ok := opts[name]; ok && v == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
