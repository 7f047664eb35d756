package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zerotwo/postcode-atlas/services/ingest/internal/fault"
)

const (
	defaultCodePointURL = "https://api.os.uk/downloads/v1/products/CodePointOpen/downloads?area=GB&format=CSV&redirect"
	defaultNSPLURL      = "https://www.arcgis.com/sharing/rest/content/items/8a1d5b58df824b2e86fe07ddfdd87165/data"
	defaultOSMURL       = "https://download.geofabrik.de/europe/great-britain-latest.osm.pbf"

	defaultDataDir         = "data"
	defaultBatchSize       = 2000
	defaultDownloadTimeout = time.Hour
)

// Node-location index strategies for the geographic extract parser.
const (
	IndexMemory     = "memory"      // fast, several GB of RAM
	IndexSparseFile = "sparse-file" // slower, disk-backed
)

// Config holds runtime configuration for the ingestion pipeline.
type Config struct {
	DatabaseURL     string
	DataDir         string
	CodePointURL    string
	NSPLURL         string
	OSMURL          string
	BatchSize       int
	OSMIndexMode    string
	DownloadTimeout time.Duration
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		DataDir:         defaultDataDir,
		CodePointURL:    defaultCodePointURL,
		NSPLURL:         defaultNSPLURL,
		OSMURL:          defaultOSMURL,
		BatchSize:       defaultBatchSize,
		OSMIndexMode:    IndexSparseFile,
		DownloadTimeout: defaultDownloadTimeout,
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return cfg, &fault.ConfigError{Msg: "DATABASE_URL is required"}
	}

	if v := strings.TrimSpace(os.Getenv("DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("CODEPOINT_URL")); v != "" {
		cfg.CodePointURL = v
	}
	if v := strings.TrimSpace(os.Getenv("NSPL_URL")); v != "" {
		cfg.NSPLURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OSM_URL")); v != "" {
		cfg.OSMURL = v
	}

	if v := strings.TrimSpace(os.Getenv("BATCH_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, &fault.ConfigError{Msg: fmt.Sprintf("invalid BATCH_SIZE: %s", v)}
		}
		cfg.BatchSize = n
	}

	if v := strings.TrimSpace(os.Getenv("OSM_INDEX_MODE")); v != "" {
		if v != IndexMemory && v != IndexSparseFile {
			return cfg, &fault.ConfigError{Msg: fmt.Sprintf("invalid OSM_INDEX_MODE: %s (want %s or %s)", v, IndexMemory, IndexSparseFile)}
		}
		cfg.OSMIndexMode = v
	}

	if v := strings.TrimSpace(os.Getenv("DOWNLOAD_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, &fault.ConfigError{Msg: fmt.Sprintf("invalid DOWNLOAD_TIMEOUT: %s", v)}
		}
		cfg.DownloadTimeout = d
	}

	return cfg, nil
}

// CodePointFile is the fixed local path of the coordinate source archive.
func (c Config) CodePointFile() string {
	return filepath.Join(c.DataDir, "codepoint-open.zip")
}

// NSPLFile is the fixed local path of the admin-lookup source archive.
func (c Config) NSPLFile() string {
	return filepath.Join(c.DataDir, "nspl.zip")
}

// OSMFile is the fixed local path of the geographic extract.
func (c Config) OSMFile() string {
	return filepath.Join(c.DataDir, "great-britain-latest.osm.pbf")
}
