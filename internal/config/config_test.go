package config

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veraison/go-cose"
	"golang.org/x/mod/sumdb/note"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TRUST_ANCHOR_OWNER_KEY_PATH", "owner.cbor")

	cfg, err := Load()
	require.Nil(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "trust_anchor.db", cfg.DBPath)
	assert.Equal(t, "trust-anchor", cfg.JournalOrigin)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.DebugCBOR)
	assert.Nil(t, cfg.Logger)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TRUST_ANCHOR_OWNER_KEY_PATH", "owner.cbor")
	t.Setenv("TRUST_ANCHOR_ADDR", "127.0.0.1:9090")
	t.Setenv("TRUST_ANCHOR_DB_PATH", ":memory:")
	t.Setenv("TRUST_ANCHOR_DEBUG_CBOR", "true")
	t.Setenv("TRUST_ANCHOR_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	require.Nil(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr)
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.True(t, cfg.DebugCBOR)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("TRUST_ANCHOR_OWNER_KEY_PATH", "")
	_, err := Load()
	require.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "TRUST_ANCHOR_OWNER_KEY_PATH"))

	t.Setenv("TRUST_ANCHOR_OWNER_KEY_PATH", "owner.cbor")
	t.Setenv("TRUST_ANCHOR_SHUTDOWN_TIMEOUT", "soon")
	_, err = Load()
	require.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "parse env:"))
}

func TestValidate(t *testing.T) {
	valid := AnchorConfig{
		Addr:              ":8080",
		DBPath:            ":memory:",
		OwnerKeyPath:      "owner.cbor",
		JournalOrigin:     "trust-anchor",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}
	require.Nil(t, valid.Validate())

	for name, mutate := range map[string]func(*AnchorConfig){
		"no addr":           func(c *AnchorConfig) { c.Addr = "" },
		"no db":             func(c *AnchorConfig) { c.DBPath = "" },
		"multiline origin":  func(c *AnchorConfig) { c.JournalOrigin = "a\nb" },
		"zero read timeout": func(c *AnchorConfig) { c.ReadHeaderTimeout = 0 },
		"negative shutdown": func(c *AnchorConfig) { c.ShutdownTimeout = -time.Second },
	} {
		c := valid
		mutate(&c)
		assert.NotNil(t, c.Validate(), name)
	}
}

func TestLoadCOSEKey(t *testing.T) {
	key := cose.Key{
		Type:      cose.KeyTypeEC2,
		Algorithm: cose.AlgorithmES256,
		Params: map[any]any{
			cose.KeyLabelEC2Curve: cose.CurveP256,
			cose.KeyLabelEC2X: []byte{
				0x65, 0xed, 0xa5, 0xa1, 0x25, 0x77, 0xc2, 0xba, 0xe8, 0x29, 0x43, 0x7f, 0xe3, 0x38, 0x70, 0x1a,
				0x10, 0xaa, 0xa3, 0x75, 0xe1, 0xbb, 0x5b, 0x5d, 0xe1, 0x08, 0xde, 0x43, 0x9c, 0x08, 0x55, 0x1d,
			},
			cose.KeyLabelEC2Y: []byte{
				0x1e, 0x52, 0xed, 0x75, 0x70, 0x11, 0x63, 0xf7, 0xf9, 0xe4, 0x0d, 0xdf, 0x9f, 0x34, 0x1b, 0x3d,
				0xc9, 0xba, 0x86, 0x0a, 0xf7, 0xe0, 0xca, 0x7c, 0xa7, 0xe9, 0xee, 0xcd, 0x00, 0x84, 0xd1, 0x9c,
			},
		},
	}
	b, err := cbor.Marshal(&key)
	require.Nil(t, err)
	path := filepath.Join(t.TempDir(), "owner.cbor")
	require.Nil(t, os.WriteFile(path, b, 0o600))

	got, err := LoadCOSEKey(path)
	require.Nil(t, err)
	assert.Equal(t, key.Type, got.Type)
	assert.Equal(t, key.Params[cose.KeyLabelEC2X], got.Params[cose.KeyLabelEC2X])

	bad := filepath.Join(t.TempDir(), "bad.cbor")
	require.Nil(t, os.WriteFile(bad, []byte("not cbor"), 0o600))
	_, err = LoadCOSEKey(bad)
	assert.NotNil(t, err)

	_, err = LoadCOSEKey(filepath.Join(t.TempDir(), "missing"))
	assert.NotNil(t, err)
}

func TestLoadNoteSigner(t *testing.T) {
	skey, _, err := note.GenerateKey(rand.Reader, "trust-anchor-test")
	require.Nil(t, err)
	path := filepath.Join(t.TempDir(), "note.key")
	require.Nil(t, os.WriteFile(path, []byte(skey+"\n"), 0o600))

	s, err := LoadNoteSigner(path)
	require.Nil(t, err)
	assert.Equal(t, "trust-anchor-test", s.Name())
}
