// Package tlslocal provides the HTTPS configuration for the login listener:
// an operator-supplied key pair, or a local CA and leaf certificate generated
// on first use.
package tlslocal

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	caCertFile   = "ca.pem"
	caKeyFile    = "ca.key"
	leafCertFile = "server.pem"
	leafKeyFile  = "server.key"

	caValidity   = 10 * 365 * 24 * time.Hour
	leafValidity = 365 * 24 * time.Hour
	// Leaves closer than this to expiry are reissued at startup.
	renewBefore = 30 * 24 * time.Hour
)

// Options selects the certificate source.
type Options struct {
	Dir      string   // where the generated CA and leaf live
	CertFile string   // operator-supplied certificate, takes precedence
	KeyFile  string   // key for CertFile
	Hosts    []string // extra DNS names or IPs for the generated leaf
}

// ServerTLSConfig returns a TLS 1.2+ server configuration.
func ServerTLSConfig(opts Options) (*tls.Config, error) {
	if opts.CertFile != "" || opts.KeyFile != "" {
		if opts.CertFile == "" || opts.KeyFile == "" {
			return nil, errors.New("both certificate and key files are required")
		}
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load key pair: %w", err)
		}
		return newServerConfig(cert), nil
	}

	if opts.Dir == "" {
		return nil, errors.New("certificate directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, err
	}

	caCrt, caKey := filepath.Join(opts.Dir, caCertFile), filepath.Join(opts.Dir, caKeyFile)
	srvCrt, srvKey := filepath.Join(opts.Dir, leafCertFile), filepath.Join(opts.Dir, leafKeyFile)

	if !exists(caCrt) || !exists(caKey) {
		if err := genLocalCA(caCrt, caKey); err != nil {
			return nil, fmt.Errorf("generate CA: %w", err)
		}
		// A new CA invalidates any leaf signed by the previous one.
		_ = os.Remove(srvCrt)
	}

	hosts := leafHosts(opts.Hosts)
	if needsLeaf(srvCrt, srvKey, hosts) {
		if err := genServerCert(caCrt, caKey, srvCrt, srvKey, hosts); err != nil {
			return nil, fmt.Errorf("generate server cert: %w", err)
		}
	}

	cert, err := tls.LoadX509KeyPair(srvCrt, srvKey)
	if err != nil {
		return nil, err
	}
	return newServerConfig(cert), nil
}

// CAPath is the generated CA certificate clients should trust.
func CAPath(dir string) string {
	return filepath.Join(dir, caCertFile)
}

func newServerConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
	}
}

func leafHosts(extra []string) []string {
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	for _, h := range extra {
		if h != "" && !slices.Contains(hosts, h) {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// needsLeaf reports whether the leaf is missing, unreadable, close to expiry
// or does not cover every host.
func needsLeaf(crtPath, keyPath string, hosts []string) bool {
	if !exists(crtPath) || !exists(keyPath) {
		return true
	}
	leaf, err := readCert(crtPath)
	if err != nil {
		return true
	}
	if time.Until(leaf.NotAfter) < renewBefore {
		return true
	}
	for _, h := range hosts {
		if leaf.VerifyHostname(h) != nil {
			return true
		}
	}
	return false
}

func exists(p string) bool { _, err := os.Stat(p); return err == nil }

func genLocalCA(crtPath, keyPath string) error {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serialNow(),
		Subject:               pkix.Name{CommonName: "loginfront local CA"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		return err
	}
	return writeCertKey(crtPath, keyPath, der, priv)
}

func genServerCert(caCrt, caKey, crtPath, keyPath string, hosts []string) error {
	ca, err := readCert(caCrt)
	if err != nil {
		return err
	}
	keyPEM, err := os.ReadFile(caKey)
	if err != nil {
		return err
	}
	kb, _ := pem.Decode(keyPEM)
	if kb == nil {
		return errors.New("invalid CA key file")
	}
	caPriv, err := x509.ParseECPrivateKey(kb.Bytes)
	if err != nil {
		return err
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serialNow(),
		Subject:      pkix.Name{CommonName: hosts[0]},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &leafKey.PublicKey, caPriv)
	if err != nil {
		return err
	}
	return writeCertKey(crtPath, keyPath, der, leafKey)
}

func readCert(path string) (*x509.Certificate, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%s: no certificate PEM block", path)
	}
	return x509.ParseCertificate(block.Bytes)
}

func writeCertKey(crtPath, keyPath string, certDER []byte, priv *ecdsa.PrivateKey) error {
	crt := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return err
	}
	key := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(crtPath, crt, 0o600); err != nil {
		return err
	}
	return os.WriteFile(keyPath, key, 0o600)
}

func serialNow() *big.Int { return new(big.Int).SetInt64(time.Now().UnixNano()) }
