package ias

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
	"time"

	"tee-ra/sgx"

	"github.com/google/uuid"
)

// Simulator is an in-process stand-in for the attestation service. It
// endorses quotes with version-4 reports signed by a caller-supplied
// authority, so the whole generate-then-verify pipeline runs offline with
// artifacts the real verifier accepts.
type Simulator struct {
	Authority   *SigningAuthority
	QuoteStatus string // isvEnclaveQuoteStatus to report, defaults to OK

	// Now supplies report timestamps; defaults to time.Now.
	Now func() time.Time
}

func NewSimulator(authority *SigningAuthority) *Simulator {
	return &Simulator{Authority: authority, QuoteStatus: "OK"}
}

// GetSigRL reports every simulated group as unrevoked.
func (s *Simulator) GetSigRL(gid uint32) ([]byte, error) {
	return []byte{}, nil
}

// GetReport endorses the quote body the way the hosted service does: the
// signed report embeds the 432-byte quote prefix, stripped of the EPID
// signature tail.
func (s *Simulator) GetReport(quote []byte) (*ReportResponse, error) {
	if len(quote) < sgx.QuoteBodyLen {
		return nil, protocolErrf(nil, "quote too short to endorse: %d bytes", len(quote))
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	status := s.QuoteStatus
	if status == "" {
		status = "OK"
	}

	avr := map[string]interface{}{
		"id":                    strings.ReplaceAll(uuid.NewString(), "-", ""),
		"timestamp":             now().UTC().Format("2006-01-02T15:04:05.000000"),
		"version":               4,
		"isvEnclaveQuoteStatus": status,
		"isvEnclaveQuoteBody":   encodeBase64(quote[:sgx.QuoteBodyLen]),
		"advisoryURL":           "https://security-center.intel.com",
		"advisoryIDs":           []string{},
	}
	body, err := json.Marshal(avr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode simulated report: %v", err)
	}

	digest := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.Authority.Key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign simulated report: %v", err)
	}

	return &ReportResponse{
		Body:        body,
		Signature:   sig,
		SigningCert: s.Authority.LeafDER,
	}, nil
}

// SigningAuthority is a throwaway report-signing CA: a self-signed root and
// one end-entity signing certificate chained to it.
type SigningAuthority struct {
	RootPEM []byte          // root certificate, PEM, the verifier trust root
	LeafDER []byte          // end-entity signing certificate, DER
	Key     *rsa.PrivateKey // end-entity signing key
}

// NewSigningAuthority mints a fresh authority whose certificates are valid
// for the given window around now.
func NewSigningAuthority(notBefore, notAfter time.Time) (*SigningAuthority, error) {
	rootKey, err := rsa.GenerateKey(rand.Reader, 3072)
	if err != nil {
		return nil, fmt.Errorf("failed to generate root key: %v", err)
	}
	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %v", err)
	}

	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Simulated Attestation Root CA"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create root certificate: %v", err)
	}
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, err
	}

	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Simulated Attestation Report Signing"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, rootCert, &leafKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signing certificate: %v", err)
	}

	return &SigningAuthority{
		RootPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rootDER}),
		LeafDER: leafDER,
		Key:     leafKey,
	}, nil
}
