package ias

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"tee-ra/shared"
)

func TestClassifyStatusIsTotal(t *testing.T) {
	cases := []struct {
		code int
		want StatusClass
	}{
		{200, StatusOK},
		{401, StatusUnauthorized},
		{404, StatusUnknownGroup},
		{500, StatusInternalError},
		{503, StatusRetryLater},
		{418, StatusUnknown},
		{999, StatusUnknown},
		{0, StatusUnknown},
		{-5, StatusUnknown},
	}
	for _, c := range cases {
		if got := ClassifyStatus(c.code); got != c.want {
			t.Errorf("ClassifyStatus(%d) = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestParseSigRLResponseEmptyBody(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\ncontent-length: 0\r\nConnection: close\r\n\r\n")
	sigrl, err := parseSigRLResponse(raw, shared.NopLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigrl) != 0 {
		t.Fatalf("expected empty revocation list, got %d bytes", len(sigrl))
	}
}

func TestParseSigRLResponseDecodesBody(t *testing.T) {
	list := []byte{0x01, 0x02, 0x03, 0x04}
	body := base64.StdEncoding.EncodeToString(list)
	raw := []byte(fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(body), body))

	sigrl, err := parseSigRLResponse(raw, shared.NopLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(sigrl, list) {
		t.Fatalf("revocation list mismatch: got %x, want %x", sigrl, list)
	}
}

func TestParseSigRLResponseRejectsBadBase64(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n!!???")
	if _, err := parseSigRLResponse(raw, shared.NopLogger()); err == nil {
		t.Fatal("expected error for malformed base64 body")
	} else {
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("expected ProtocolError, got %T", err)
		}
	}
}

func TestParseResponseRejectsTruncatedBody(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Length: 50\r\n\r\nshort")
	if _, err := parseSigRLResponse(raw, shared.NopLogger()); err == nil {
		t.Fatal("expected error for truncated body")
	}
}

func TestParseResponseRejectsExcessHeaders(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("HTTP/1.1 200 OK\r\n")
	for i := 0; i < maxHeaders+1; i++ {
		fmt.Fprintf(&sb, "X-Filler-%d: v\r\n", i)
	}
	sb.WriteString("\r\n")
	if _, err := parseSigRLResponse([]byte(sb.String()), shared.NopLogger()); err == nil {
		t.Fatal("expected error for unbounded header count")
	}
}

// buildReportResponse assembles a report-endorsement response in the shape
// the service emits, with the signing certificate chain percent-encoded in
// its header.
func buildReportResponse(body string, sig []byte, leafDER, rootDER []byte, contentLengthName string) []byte {
	encode := func(der []byte) string {
		b64 := base64.StdEncoding.EncodeToString(der)
		// the service percent-encodes the PEM armor and its newlines
		return "-----BEGIN%20CERTIFICATE-----%0A" + strings.ReplaceAll(b64, "+", "%2B") + "%0A-----END%20CERTIFICATE-----%0A"
	}
	return []byte(fmt.Sprintf(
		"HTTP/1.1 200 OK\r\n%s: %d\r\nX-IASReport-Signature: %s\r\nX-IASReport-Signing-Certificate: %s\r\n\r\n%s",
		contentLengthName,
		len(body),
		base64.StdEncoding.EncodeToString(sig),
		encode(leafDER)+encode(rootDER),
		body,
	))
}

func TestParseReportResponse(t *testing.T) {
	body := `{"id":"1","version":4}`
	sig := []byte{0xde, 0xad, 0xbe, 0xef}
	leaf := []byte("leaf certificate der bytes")
	root := []byte("root certificate der bytes")

	for _, name := range []string{"Content-Length", "content-length", "CONTENT-LENGTH"} {
		resp, err := parseReportResponse(buildReportResponse(body, sig, leaf, root, name), shared.NopLogger())
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if string(resp.Body) != body {
			t.Errorf("%s: body mismatch: got %q", name, resp.Body)
		}
		if !bytes.Equal(resp.Signature, sig) {
			t.Errorf("%s: signature mismatch: got %x", name, resp.Signature)
		}
		if !bytes.Equal(resp.SigningCert, leaf) {
			t.Errorf("%s: expected first PEM block (end-entity cert), got %q", name, resp.SigningCert)
		}
	}
}

func TestParseReportResponseMissingSignature(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\nX-IASReport-Signing-Certificate: -----BEGIN%20CERTIFICATE-----%0AaGk=%0A-----END-----\r\n\r\n{}")
	if _, err := parseReportResponse(raw, shared.NopLogger()); err == nil {
		t.Fatal("expected error for missing signature header")
	}
}

func TestParseReportResponseMissingBody(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\nX-IASReport-Signature: aGk=\r\nX-IASReport-Signing-Certificate: -----BEGIN-----%0AaGk=%0A-----END-----\r\n\r\n")
	if _, err := parseReportResponse(raw, shared.NopLogger()); err == nil {
		t.Fatal("expected error for report response without body")
	}
}

func TestDecodeSigningCertRejectsMissingPEM(t *testing.T) {
	if _, err := decodeSigningCert("no pem armor here"); err == nil {
		t.Fatal("expected error for header without PEM delimiters")
	}
}
