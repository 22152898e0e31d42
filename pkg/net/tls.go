package net

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/jingkaihe/gameward/internal/errx"
	"github.com/jingkaihe/gameward/pkg/api"
)

var defaultCertHosts = []string{"localhost", "127.0.0.1"}

// LoadTLSConfig loads the certificate pair named in cfg. When the files are
// missing and cfg.SelfSigned is set, a self-signed pair is generated and
// written there first so later runs reuse it.
func LoadTLSConfig(cfg api.TLSConfig) (*tls.Config, error) {
	if !fileExists(cfg.CertFile) || !fileExists(cfg.KeyFile) {
		if !cfg.SelfSigned {
			return nil, errx.With(ErrLoadCertificate, ": %s or %s not found", cfg.CertFile, cfg.KeyFile)
		}
		hosts := cfg.Hosts
		if len(hosts) == 0 {
			hosts = defaultCertHosts
		}
		certPEM, keyPEM, err := GenerateSelfSigned(hosts)
		if err != nil {
			return nil, err
		}
		if err := saveCertificate(cfg.CertFile, cfg.KeyFile, certPEM, keyPEM); err != nil {
			return nil, err
		}
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errx.Wrap(ErrLoadCertificate, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// GenerateSelfSigned returns PEM-encoded certificate and RSA key for hosts.
// Entries that parse as IP addresses become IP SANs.
func GenerateSelfSigned(hosts []string) (certPEM, keyPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, errx.Wrap(ErrGenerateCert, err)
	}

	serialNumber, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, nil, errx.Wrap(ErrGenerateCert, err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"gameward"},
			CommonName:   hosts[0],
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, errx.Wrap(ErrGenerateCert, err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM, nil
}

func saveCertificate(certPath, keyPath string, certPEM, keyPEM []byte) error {
	for _, dir := range []string{filepath.Dir(certPath), filepath.Dir(keyPath)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return errx.Wrap(ErrSaveCert, err)
		}
	}
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return errx.Wrap(ErrSaveCert, err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return errx.Wrap(ErrSaveCert, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
