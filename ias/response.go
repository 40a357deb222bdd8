package ias

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"tee-ra/shared"

	"go.uber.org/zap"
)

// maxHeaders bounds the header scan; the service sends well under this.
const maxHeaders = 16

// ProtocolError marks a malformed response from the attestation service:
// bad HTTP framing, a missing expected header, or invalid base64/UTF-8/JSON.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attestation service protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("attestation service protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolErrf(err error, format string, args ...interface{}) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// StatusClass is the informational classification of a response status code.
// It never drives control flow in this layer; callers interpret it, in
// particular RetryLater for their own backoff policy.
type StatusClass int

const (
	StatusOK StatusClass = iota
	StatusUnauthorized
	StatusUnknownGroup
	StatusInternalError
	StatusRetryLater
	StatusUnknown
)

// ClassifyStatus maps any status code to its class. Total: unrecognized
// codes map to StatusUnknown.
func ClassifyStatus(code int) StatusClass {
	switch code {
	case 200:
		return StatusOK
	case 401:
		return StatusUnauthorized
	case 404:
		return StatusUnknownGroup
	case 500:
		return StatusInternalError
	case 503:
		return StatusRetryLater
	default:
		return StatusUnknown
	}
}

func (s StatusClass) String() string {
	switch s {
	case StatusOK:
		return "operation successful"
	case StatusUnauthorized:
		return "failed to authenticate or authorize request"
	case StatusUnknownGroup:
		return "GID does not refer to a valid EPID group ID"
	case StatusInternalError:
		return "internal error occurred"
	case StatusRetryLater:
		return "service temporarily overloaded, repeat the request after some time"
	default:
		return "unknown error occurred"
	}
}

// parsedResponse is the outcome of the shared HTTP/1.1 response scan.
type parsedResponse struct {
	code    int
	class   StatusClass
	headers map[string]string // lower-cased names
	body    []byte            // sliced by content-length, nil when declared 0
}

// parseResponse splits a raw HTTP/1.1 response into status, headers and the
// content-length-sliced body. Header names are matched case-insensitively:
// the service endpoints have been observed using different casings of
// Content-Length and the distinction carries no meaning.
func parseResponse(raw []byte) (*parsedResponse, error) {
	headerEnd := bytes.Index(raw, []byte("\r\n\r\n"))
	if headerEnd < 0 {
		return nil, protocolErrf(nil, "response headers not terminated")
	}
	if !utf8.Valid(raw[:headerEnd]) {
		return nil, protocolErrf(nil, "response headers are not valid UTF-8")
	}

	lines := strings.Split(string(raw[:headerEnd]), "\r\n")
	statusParts := strings.SplitN(lines[0], " ", 3)
	if len(statusParts) < 2 || !strings.HasPrefix(statusParts[0], "HTTP/") {
		return nil, protocolErrf(nil, "malformed status line %q", lines[0])
	}
	code, err := strconv.Atoi(statusParts[1])
	if err != nil {
		return nil, protocolErrf(err, "malformed status code %q", statusParts[1])
	}

	if len(lines)-1 > maxHeaders {
		return nil, protocolErrf(nil, "too many response headers: %d", len(lines)-1)
	}
	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, protocolErrf(nil, "malformed header line %q", line)
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	resp := &parsedResponse{
		code:    code,
		class:   ClassifyStatus(code),
		headers: headers,
	}

	// A declared length of zero short-circuits to an absent body.
	if lenStr, ok := headers["content-length"]; ok {
		n, err := strconv.ParseUint(lenStr, 10, 32)
		if err != nil {
			return nil, protocolErrf(err, "malformed content-length %q", lenStr)
		}
		if n > 0 {
			body := raw[headerEnd+4:]
			if uint64(len(body)) < n {
				return nil, protocolErrf(nil, "truncated body: declared %d bytes, got %d", n, len(body))
			}
			resp.body = body[:n]
		}
	}
	return resp, nil
}

// parseSigRLResponse decodes a revocation-list response body. A zero-length
// body yields an empty list.
func parseSigRLResponse(raw []byte, logger *shared.Logger) ([]byte, error) {
	resp, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	logger.Info("revocation list response", zap.Int("code", resp.code), zap.String("status", resp.class.String()))
	if len(resp.body) == 0 {
		return []byte{}, nil
	}
	sigrl, err := base64.StdEncoding.DecodeString(string(resp.body))
	if err != nil {
		return nil, protocolErrf(err, "revocation list is not valid base64")
	}
	return sigrl, nil
}

// parseReportResponse extracts the endorsed report body plus the signature
// and signing certificate carried in response headers.
func parseReportResponse(raw []byte, logger *shared.Logger) (*ReportResponse, error) {
	resp, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	logger.Info("report response", zap.Int("code", resp.code), zap.String("status", resp.class.String()))

	sigB64, ok := resp.headers[strings.ToLower(reportSignatureHeader)]
	if !ok {
		return nil, protocolErrf(nil, "missing %s header", reportSignatureHeader)
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, protocolErrf(err, "report signature is not valid base64")
	}

	certHeader, ok := resp.headers[strings.ToLower(signingCertHeader)]
	if !ok {
		return nil, protocolErrf(nil, "missing %s header", signingCertHeader)
	}
	cert, err := decodeSigningCert(certHeader)
	if err != nil {
		return nil, err
	}

	if len(resp.body) == 0 {
		return nil, protocolErrf(nil, "report response carries no body")
	}
	if !utf8.Valid(resp.body) {
		return nil, protocolErrf(nil, "report body is not valid UTF-8")
	}

	return &ReportResponse{
		Body:        append([]byte{}, resp.body...),
		Signature:   sig,
		SigningCert: cert,
	}, nil
}

// decodeSigningCert unwraps the percent-encoded PEM chain in the signing
// certificate header and returns the DER bytes of the first (end-entity)
// certificate. Encoded newlines are dropped before percent decoding so the
// embedded base64 comes out contiguous.
func decodeSigningCert(value string) ([]byte, error) {
	cleaned := strings.ReplaceAll(value, "%0A", "")
	decoded, err := url.PathUnescape(cleaned)
	if err != nil {
		return nil, protocolErrf(err, "signing certificate header is not valid percent-encoding")
	}
	segments := strings.Split(decoded, "-----")
	if len(segments) < 3 {
		return nil, protocolErrf(nil, "signing certificate header carries no PEM block")
	}
	cert, err := base64.StdEncoding.DecodeString(segments[2])
	if err != nil {
		return nil, protocolErrf(err, "signing certificate is not valid base64")
	}
	return cert, nil
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
