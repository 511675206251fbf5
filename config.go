package reader

import (
	"os"
	"strconv"
	"time"

	"github.com/simp-lee/reader/epub"
	"github.com/simp-lee/reader/pdfpage"
	"github.com/simp-lee/reader/store"
)

// Config holds the tunables of a reading session.
type Config struct {
	// Store locates the position and bookmark database.
	Store store.Config

	// PageCacheSize is the number of rendered raster pages kept in memory.
	PageCacheSize int

	// RenderDPI is the resolution raster pages are rendered at.
	RenderDPI float64

	// ExtractDir is the parent of per-book extraction directories. Empty
	// means os.TempDir().
	ExtractDir string

	// Workers bounds concurrent unit loading.
	Workers int

	// StructuredDebounce and RasterDebounce delay progress saves after
	// scrolling stops.
	StructuredDebounce time.Duration
	RasterDebounce     time.Duration

	// StructuredRestore and RasterRestore control scroll restoration.
	StructuredRestore RestorePolicy
	RasterRestore     RestorePolicy
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Store:              store.DefaultConfig(),
		PageCacheSize:      pdfpage.DefaultCapacity,
		RenderDPI:          pdfpage.DefaultDPI,
		Workers:            epub.DefaultWorkers,
		StructuredDebounce: 500 * time.Millisecond,
		RasterDebounce:     time.Second,
		StructuredRestore:  StructuredRestorePolicy(),
		RasterRestore:      RasterRestorePolicy(),
	}
}

// LoadConfig returns DefaultConfig with environment overrides applied:
// READER_DB_PATH, READER_PAGE_CACHE_SIZE, READER_RENDER_DPI,
// READER_EXTRACT_DIR and READER_WORKERS. Unparsable or non-positive values
// are ignored.
func LoadConfig() Config {
	cfg := DefaultConfig()
	if n, ok := envInt("READER_PAGE_CACHE_SIZE"); ok {
		cfg.PageCacheSize = n
	}
	if v := os.Getenv("READER_RENDER_DPI"); v != "" {
		if dpi, err := strconv.ParseFloat(v, 64); err == nil && dpi > 0 {
			cfg.RenderDPI = dpi
		}
	}
	if v := os.Getenv("READER_EXTRACT_DIR"); v != "" {
		cfg.ExtractDir = v
	}
	if n, ok := envInt("READER_WORKERS"); ok {
		cfg.Workers = n
	}
	return cfg
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
