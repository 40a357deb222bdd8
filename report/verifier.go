package report

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"
)

// VerificationError marks a report that must be rejected outright: an
// invalid certificate chain, a bad signature, a time outside the
// certificate's validity window, or an unsupported algorithm.
type VerificationError struct {
	Reason string
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("report verification failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("report verification failed: %s", e.Reason)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func verificationErrf(err error, format string, args ...interface{}) error {
	return &VerificationError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// allowedSigAlgs is the fixed allow-list for the signing certificate's own
// signature: ECDSA P-256/P-384 with SHA-256/384, RSA-PSS with
// SHA-256/384/512, RSA-PKCS1 with SHA-256/384/512.
var allowedSigAlgs = map[x509.SignatureAlgorithm]bool{
	x509.ECDSAWithSHA256:  true,
	x509.ECDSAWithSHA384:  true,
	x509.SHA256WithRSAPSS: true,
	x509.SHA384WithRSAPSS: true,
	x509.SHA512WithRSAPSS: true,
	x509.SHA256WithRSA:    true,
	x509.SHA384WithRSA:    true,
	x509.SHA512WithRSA:    true,
}

// RSA moduli accepted for the report-signing key.
const (
	minRSABits = 2048
	maxRSABits = 8192
)

// Verifier authenticates endorsed reports against a single immutable trust
// root. It performs no network or platform calls and keeps no mutable
// state, so one Verifier may be shared across goroutines for the process
// lifetime.
type Verifier struct {
	roots *x509.CertPool
}

// NewVerifier builds a verifier pinned to the given root certificate. The
// root may be PEM or raw DER. The root is the whole trust story: reports
// signed under any other hierarchy fail verification.
func NewVerifier(root []byte) (*Verifier, error) {
	der := root
	if block, _ := pem.Decode(root); block != nil {
		der = block.Bytes
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trust root certificate: %v", err)
	}
	roots := x509.NewCertPool()
	roots.AddCert(cert)
	return &Verifier{roots: roots}, nil
}

// Verify authenticates an endorsed report at the supplied time. The clock
// reading is explicit so verification stays a pure function of its inputs.
func (v *Verifier) Verify(r *EndorsedAttestationReport, now time.Time) error {
	cert, err := x509.ParseCertificate(r.SigningCert)
	if err != nil {
		return verificationErrf(err, "failed to parse signing certificate")
	}

	if !allowedSigAlgs[cert.SignatureAlgorithm] {
		return verificationErrf(nil, "signing certificate uses disallowed signature algorithm %v", cert.SignatureAlgorithm)
	}

	if _, err := cert.Verify(x509.VerifyOptions{
		Roots:       v.roots,
		CurrentTime: now,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}); err != nil {
		return verificationErrf(err, "signing certificate does not chain to the trust root")
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return verificationErrf(nil, "signing certificate does not carry an RSA key")
	}
	if bits := pub.N.BitLen(); bits < minRSABits || bits > maxRSABits {
		return verificationErrf(nil, "signing key has unsupported modulus size %d", bits)
	}

	// The signature covers the exact raw bytes of the report body.
	digest := sha256.Sum256([]byte(r.AVR))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], r.Signature); err != nil {
		return verificationErrf(err, "report signature is invalid")
	}
	return nil
}
