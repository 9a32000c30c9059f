package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
	"golang.org/x/mod/sumdb/note"
)

// AnchorConfig captures the tunables required to start the trust anchor server.
type AnchorConfig struct {
	Addr               string        `env:"TRUST_ANCHOR_ADDR" envDefault:":8080"`
	DBPath             string        `env:"TRUST_ANCHOR_DB_PATH" envDefault:"trust_anchor.db"`
	OwnerKeyPath       string        `env:"TRUST_ANCHOR_OWNER_KEY_PATH"`
	JournalOrigin      string        `env:"TRUST_ANCHOR_JOURNAL_ORIGIN" envDefault:"trust-anchor"`
	JournalNoteKeyPath string        `env:"TRUST_ANCHOR_JOURNAL_NOTE_KEY_PATH"`
	DebugCBOR          bool          `env:"TRUST_ANCHOR_DEBUG_CBOR"`
	OTelEndpoint       string        `env:"TRUST_ANCHOR_OTEL_ENDPOINT"`
	ReadHeaderTimeout  time.Duration `env:"TRUST_ANCHOR_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout    time.Duration `env:"TRUST_ANCHOR_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	Logger             *log.Logger
}

// Load reads AnchorConfig from the environment and validates it.
func Load() (AnchorConfig, error) {
	var cfg AnchorConfig
	if err := env.Parse(&cfg); err != nil {
		return AnchorConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AnchorConfig{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is coherent.
func (c AnchorConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("invalid TRUST_ANCHOR_ADDR: must not be empty")
	}
	if c.DBPath == "" {
		return errors.New("invalid TRUST_ANCHOR_DB_PATH: must not be empty")
	}
	if c.OwnerKeyPath == "" {
		return errors.New("invalid TRUST_ANCHOR_OWNER_KEY_PATH: must not be empty")
	}
	// the origin is the first line of every checkpoint
	if c.JournalOrigin == "" || strings.ContainsAny(c.JournalOrigin, "\n\r") {
		return errors.New("invalid TRUST_ANCHOR_JOURNAL_ORIGIN: must be a single non-empty line")
	}
	if c.ReadHeaderTimeout <= 0 {
		return errors.New("invalid TRUST_ANCHOR_READ_HEADER_TIMEOUT: must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("invalid TRUST_ANCHOR_SHUTDOWN_TIMEOUT: must be > 0")
	}
	return nil
}

// LoadCOSEKey reads a CBOR encoded COSE_Key from path.
func LoadCOSEKey(path string) (*cose.Key, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read COSE key: %w", err)
	}
	var key cose.Key
	if err := cbor.Unmarshal(b, &key); err != nil {
		return nil, fmt.Errorf("decode COSE key %q: %w", path, err)
	}
	return &key, nil
}

// LoadNoteSigner reads a note signer key ("PRIVATE+KEY+name+hash+key") from path.
func LoadNoteSigner(path string) (note.Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read note key: %w", err)
	}
	s, err := note.NewSigner(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("parse note key %q: %w", path, err)
	}
	return s, nil
}
