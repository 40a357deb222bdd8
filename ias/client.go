// Package ias implements the client side of the EPID attestation service
// exchanges: fetching signature revocation lists and submitting quotes for
// endorsement. Requests are written byte-for-byte in the shapes the service
// expects; responses are parsed with the bounded parser in response.go.
package ias

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"

	"tee-ra/shared"

	"go.uber.org/zap"
)

// Header names used by the attestation service.
const (
	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	reportSignatureHeader = "X-IASReport-Signature"
	signingCertHeader     = "X-IASReport-Signing-Certificate"
)

// Default endpoints of the hosted attestation service (development tier).
const (
	DefaultHost       = "api.trustedservices.intel.com"
	DefaultSigRLPath  = "/sgx/dev/attestation/v4/sigrl/"
	DefaultReportPath = "/sgx/dev/attestation/v4/report"

	ProductionSigRLPath  = "/sgx/attestation/v4/sigrl/"
	ProductionReportPath = "/sgx/attestation/v4/report"
)

// DialFunc opens a fresh authenticated connection to the service host.
// Connections are never pooled; every exchange gets its own.
type DialFunc func(host string) (net.Conn, error)

// Config carries the per-deployment constants. All of it is explicit and
// immutable so multiple trust domains can coexist in one process.
type Config struct {
	Host            string
	SigRLPath       string
	ReportPath      string
	SubscriptionKey string

	// Dial overrides the default TLS dial to Host:443. Tests point it at a
	// local pipe; the enclave host points it at an already-authenticated
	// byte stream.
	Dial DialFunc
}

// ReportResponse is the raw result of a report-endorsement exchange.
type ReportResponse struct {
	Body        []byte // UTF-8 JSON attestation verification report
	Signature   []byte // raw signature over Body
	SigningCert []byte // DER certificate matching the signing key
}

// ServiceClient is the surface the generation protocol depends on. Client
// talks to the real service; Simulator implements the same surface offline.
type ServiceClient interface {
	GetSigRL(gid uint32) ([]byte, error)
	GetReport(quote []byte) (*ReportResponse, error)
}

// Client performs the two attestation service exchanges over raw TLS.
type Client struct {
	cfg    Config
	logger *shared.Logger
}

func NewClient(cfg Config, logger *shared.Logger) *Client {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.SigRLPath == "" {
		cfg.SigRLPath = DefaultSigRLPath
	}
	if cfg.ReportPath == "" {
		cfg.ReportPath = DefaultReportPath
	}
	if cfg.Dial == nil {
		cfg.Dial = func(host string) (net.Conn, error) {
			return tls.Dial("tcp", host+":443", &tls.Config{ServerName: host})
		}
	}
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &Client{cfg: cfg, logger: logger}
}

// GetSigRL fetches the signature revocation list for an EPID group. An empty
// list is a normal result for unrevoked groups, not an error.
func (c *Client) GetSigRL(gid uint32) ([]byte, error) {
	req := fmt.Sprintf("GET %s%08x HTTP/1.1\r\nHOST: %s\r\n%s: %s\r\nConnection: Close\r\n\r\n",
		c.cfg.SigRLPath,
		gid,
		c.cfg.Host,
		subscriptionKeyHeader,
		strings.TrimSpace(c.cfg.SubscriptionKey))

	raw, err := c.exchange(req)
	if err != nil {
		return nil, err
	}

	sigrl, err := parseSigRLResponse(raw, c.logger)
	if err != nil {
		return nil, err
	}
	c.logger.WithGroup(gid).Info("fetched signature revocation list", zap.Int("sigrl_bytes", len(sigrl)))
	return sigrl, nil
}

// GetReport submits a quote for endorsement and returns the signed report.
func (c *Client) GetReport(quote []byte) (*ReportResponse, error) {
	body := fmt.Sprintf("{\"isvEnclaveQuote\":\"%s\"}\r\n", encodeBase64(quote))
	req := fmt.Sprintf("POST %s HTTP/1.1\r\nHOST: %s\r\n%s:%s\r\nContent-Length:%d\r\nContent-Type: application/json\r\nConnection: close\r\n\r\n%s",
		c.cfg.ReportPath,
		c.cfg.Host,
		subscriptionKeyHeader,
		strings.TrimSpace(c.cfg.SubscriptionKey),
		len(body),
		body)

	raw, err := c.exchange(req)
	if err != nil {
		return nil, err
	}

	resp, err := parseReportResponse(raw, c.logger)
	if err != nil {
		return nil, err
	}
	c.logger.Info("attestation report endorsed", zap.Int("avr_bytes", len(resp.Body)))
	return resp, nil
}

// exchange writes one request on a fresh connection and reads until the
// service closes its end (both exchanges request Connection: close).
func (c *Client) exchange(req string) ([]byte, error) {
	conn, err := c.cfg.Dial(c.cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.cfg.Host, err)
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, req); err != nil {
		return nil, fmt.Errorf("failed to write request to %s: %w", c.cfg.Host, err)
	}
	raw, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", c.cfg.Host, err)
	}
	return raw, nil
}
