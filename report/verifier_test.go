package report_test

import (
	"errors"
	"testing"
	"time"

	"tee-ra/ias"
	"tee-ra/report"
	"tee-ra/sgx"
)

func endorse(t *testing.T, authority *ias.SigningAuthority) *report.EndorsedAttestationReport {
	t.Helper()
	var q sgx.Quote
	q.Version = 2
	raw, err := sgx.EncodeQuote(&q)
	if err != nil {
		t.Fatalf("failed to encode quote: %v", err)
	}
	resp, err := ias.NewSimulator(authority).GetReport(raw)
	if err != nil {
		t.Fatalf("failed to endorse quote: %v", err)
	}
	return &report.EndorsedAttestationReport{
		AVR:         string(resp.Body),
		Signature:   resp.Signature,
		SigningCert: resp.SigningCert,
	}
}

func TestVerifyValidReport(t *testing.T) {
	now := time.Now()
	authority, err := ias.NewSigningAuthority(now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to create authority: %v", err)
	}
	endorsed := endorse(t, authority)

	verifier, err := report.NewVerifier(authority.RootPEM)
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}
	if err := verifier.Verify(endorsed, now); err != nil {
		t.Fatalf("expected verification success, got: %v", err)
	}

	avr, err := endorsed.GetAVR()
	if err != nil {
		t.Fatalf("failed to parse verified report: %v", err)
	}
	if avr.Version != report.SupportedReportVersion {
		t.Fatalf("unexpected report version %d", avr.Version)
	}
	if _, err := avr.ParseQuote(); err != nil {
		t.Fatalf("failed to parse quote from verified report: %v", err)
	}
}

func TestVerifyOutsideValidityWindow(t *testing.T) {
	now := time.Now()
	authority, err := ias.NewSigningAuthority(now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to create authority: %v", err)
	}
	endorsed := endorse(t, authority)
	verifier, err := report.NewVerifier(authority.RootPEM)
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}

	for name, at := range map[string]time.Time{
		"before validity": now.Add(-2 * time.Hour),
		"after expiry":    now.Add(2 * time.Hour),
	} {
		err := verifier.Verify(endorsed, at)
		if err == nil {
			t.Fatalf("%s: expected verification failure", name)
		}
		var verr *report.VerificationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected VerificationError, got %T", name, err)
		}
	}
}

func TestVerifyRejectsForeignCertChain(t *testing.T) {
	now := time.Now()
	authorityA, err := ias.NewSigningAuthority(now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to create authority: %v", err)
	}
	authorityB, err := ias.NewSigningAuthority(now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to create authority: %v", err)
	}

	// the report carries a signature that is independently valid under
	// authority B's certificate; it must still fail against root A
	endorsed := endorse(t, authorityB)
	verifier, err := report.NewVerifier(authorityA.RootPEM)
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}
	if err := verifier.Verify(endorsed, now); err == nil {
		t.Fatal("expected verification failure for non-chaining certificate")
	}
}

func TestVerifyRejectsTamperedArtifact(t *testing.T) {
	now := time.Now()
	authority, err := ias.NewSigningAuthority(now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to create authority: %v", err)
	}
	verifier, err := report.NewVerifier(authority.RootPEM)
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}

	tamperedBody := endorse(t, authority)
	tamperedBody.AVR = tamperedBody.AVR[:len(tamperedBody.AVR)-1] + " "
	if err := verifier.Verify(tamperedBody, now); err == nil {
		t.Fatal("expected verification failure for modified report body")
	}

	tamperedSig := endorse(t, authority)
	tamperedSig.Signature[0] ^= 0x01
	if err := verifier.Verify(tamperedSig, now); err == nil {
		t.Fatal("expected verification failure for modified signature")
	}
}
