package tool

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/moyoez/pdfbot-go/types"
)

// GetOrCreateTLSCertFromConfig loads the certificate stored in config or generates a new self-signed one.
// A freshly generated pair is written back into cfg.CertPEM / cfg.KeyPEM.
func GetOrCreateTLSCertFromConfig(cfg *types.AppConfig) (tls.Certificate, error) {
	if cfg.CertPEM != "" && cfg.KeyPEM != "" {
		cert, err := loadTLSCertFromPEM(cfg.CertPEM, cfg.KeyPEM)
		if err == nil {
			DefaultLogger.Infof("Loaded existing TLS certificate from config")
			return cert, nil
		}
		DefaultLogger.Warnf("Certificate in config is invalid or expired: %v, regenerating...", err)
	}

	certDER, keyDER, err := generateTLSCert()
	if err != nil {
		return tls.Certificate{}, err
	}
	cfg.CertPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}))
	cfg.KeyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	DefaultLogger.Infof("TLS certificate generated (fingerprint %s)", Fingerprint(certDER))

	return tls.X509KeyPair([]byte(cfg.CertPEM), []byte(cfg.KeyPEM))
}

// Fingerprint is the hex sha256 of a DER certificate.
func Fingerprint(certDER []byte) string {
	hash := sha256.Sum256(certDER)
	return hex.EncodeToString(hash[:])
}

func loadTLSCertFromPEM(certPEMStr, keyPEMStr string) (tls.Certificate, error) {
	certBlock, _ := pem.Decode([]byte(certPEMStr))
	if certBlock == nil {
		return tls.Certificate{}, fmt.Errorf("failed to decode certificate PEM")
	}
	parsed, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to parse certificate: %v", err)
	}
	if time.Now().After(parsed.NotAfter) {
		return tls.Certificate{}, fmt.Errorf("certificate has expired")
	}
	return tls.X509KeyPair([]byte(certPEMStr), []byte(keyPEMStr))
}

func generateTLSCert() (certDER []byte, keyDER []byte, err error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate ECDSA private key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial: %v", err)
	}

	cert := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "pdfbot-localCert",
			Organization: []string{"pdfbot-localCert"},
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(time.Hour * 24 * 365),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{"localhost"},
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, &cert, &cert, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %v", err)
	}
	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal ECDSA private key: %v", err)
	}
	return certBytes, privateKeyBytes, nil
}
