package net

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/gameward/pkg/api"
)

func selfSignedConfig(t *testing.T) api.TLSConfig {
	t.Helper()
	dir := t.TempDir()
	return api.TLSConfig{
		Enabled:    true,
		CertFile:   filepath.Join(dir, "tls", "cert.pem"),
		KeyFile:    filepath.Join(dir, "tls", "key.pem"),
		SelfSigned: true,
		Hosts:      []string{"localhost", "127.0.0.1"},
	}
}

func TestGenerateSelfSigned(t *testing.T) {
	certPEM, keyPEM, err := GenerateSelfSigned([]string{"play.example.com", "10.0.0.5"})
	require.NoError(t, err)
	require.NotEmpty(t, keyPEM)

	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	assert.Equal(t, "play.example.com", cert.Subject.CommonName)
	assert.Equal(t, []string{"play.example.com"}, cert.DNSNames)
	require.Len(t, cert.IPAddresses, 1)
	assert.Equal(t, "10.0.0.5", cert.IPAddresses[0].String())
}

func TestLoadTLSConfig_GeneratesAndReuses(t *testing.T) {
	cfg := selfSignedConfig(t)

	first, err := LoadTLSConfig(cfg)
	require.NoError(t, err)
	require.Len(t, first.Certificates, 1)

	info, err := os.Stat(cfg.KeyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second, err := LoadTLSConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, first.Certificates[0].Certificate[0], second.Certificates[0].Certificate[0],
		"existing pair should be loaded, not regenerated")
}

func TestLoadTLSConfig_MissingWithoutSelfSigned(t *testing.T) {
	cfg := selfSignedConfig(t)
	cfg.SelfSigned = false

	_, err := LoadTLSConfig(cfg)
	require.ErrorIs(t, err, ErrLoadCertificate)
}

func TestLoadTLSConfig_CorruptPair(t *testing.T) {
	cfg := selfSignedConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.CertFile), 0700))
	require.NoError(t, os.WriteFile(cfg.CertFile, []byte("not a cert"), 0644))
	require.NoError(t, os.WriteFile(cfg.KeyFile, []byte("not a key"), 0600))

	_, err := LoadTLSConfig(cfg)
	require.ErrorIs(t, err, ErrLoadCertificate)
}
