// Package ra runs the quote generation protocol: it drives the platform
// quoting capability and the attestation service through a fixed sequence
// that ends in an endorsed, signed attestation report bound to a
// caller-chosen 32-byte commitment.
package ra

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"tee-ra/ias"
	"tee-ra/report"
	"tee-ra/sgx"
	"tee-ra/shared"

	"go.uber.org/zap"
)

// CommitmentSize is the caller data bound into the attestation, typically a
// commitment to the enclave's signing key.
const CommitmentSize = 32

// Generator owns one platform capability and one service client. A single
// CreateAttestationReport call is strictly sequential and blocking;
// concurrent calls must not share nonces or connections, which holds here
// because each run draws a fresh nonce and the client dials per exchange.
type Generator struct {
	provider sgx.QuoteProvider
	client   ias.ServiceClient
	logger   *shared.Logger
}

func NewGenerator(provider sgx.QuoteProvider, client ias.ServiceClient, logger *shared.Logger) *Generator {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &Generator{provider: provider, client: client, logger: logger}
}

// CreateAttestationReport produces an endorsed attestation report whose
// quote binds reportData into the platform attestation. Any failure aborts
// with no partial output; the one tolerated degradation is a failed
// revocation-list fetch, which proceeds with an empty list.
func (g *Generator) CreateAttestationReport(
	reportData [CommitmentSize]byte,
	signType sgx.QuoteSignType,
	spid sgx.Spid,
) (*report.EndorsedAttestationReport, error) {
	// (1) target info + EPID group from the platform
	ti, groupID, err := g.provider.InitQuote()
	if err != nil {
		return nil, &PlatformError{Op: "quote initialization", Err: err}
	}
	gid := groupID.Uint32()
	g.logger.WithGroup(gid).Debug("quote initialized")

	// (2) revocation list, best-effort: the service tolerates an empty
	// list for unrevoked groups, so a fetch failure degrades rather than
	// aborting the run
	sigrl, err := g.client.GetSigRL(gid)
	if err != nil {
		g.logger.WithGroup(gid).Warn("revocation list fetch failed, proceeding with empty list", zap.Error(err))
		sigrl = []byte{}
	}

	// (3) local report binding the commitment to the platform identity
	var data sgx.ReportData
	copy(data[:CommitmentSize], reportData[:])
	localReport, err := g.provider.CreateReport(ti, data)
	if err != nil {
		return nil, &PlatformError{Op: "report creation", Err: err}
	}

	// (4) fresh anti-replay nonce, owned by this run only
	var nonce sgx.QuoteNonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate quote nonce: %v", err)
	}

	// (5) quote + self-check report
	quote, selfCheck, err := g.provider.GetQuote(sigrl, localReport, signType, spid, nonce)
	if err != nil {
		return nil, &PlatformError{Op: "quote generation", Err: err}
	}
	if len(quote) > sgx.MaxQuoteLen {
		return nil, &PlatformError{Op: "quote generation", Err: fmt.Errorf("quote of %d bytes exceeds %d byte buffer", len(quote), sgx.MaxQuoteLen)}
	}
	g.logger.WithStep("get_quote").Debug("quote generated", zap.Int("quote_bytes", len(quote)))

	// (6) the self-check report proves the quoting path was not tampered
	// with by the untrusted software stack
	if err := g.provider.VerifyReport(selfCheck); err != nil {
		g.logger.Security("self-check report verification failed", zap.Error(err))
		return nil, &IntegrityError{Reason: fmt.Sprintf("self-check report verification: %v", err)}
	}

	// (7) the self-check report must come from the same quoting enclave
	// instance that quote initialization pointed at
	if ti.MREnclave != selfCheck.Body.MREnclave ||
		ti.Attributes.Flags != selfCheck.Body.Attributes.Flags ||
		ti.Attributes.Xfrm != selfCheck.Body.Attributes.Xfrm {
		g.logger.Security("self-check report does not match current target info")
		return nil, &IntegrityError{Reason: "self-check report does not match current target info"}
	}

	// (8) anti-replay: the quoting enclave commits SHA256(nonce || quote)
	// into the lower 32 bytes of the self-check report data
	digest := sha256.Sum256(append(append([]byte{}, nonce[:]...), quote...))
	if !bytes.Equal(digest[:], selfCheck.Body.ReportData[:sha256.Size]) {
		g.logger.Security("quote anti-replay digest mismatch")
		return nil, &IntegrityError{Reason: "quote was modified or replayed"}
	}

	// (9) submit for endorsement; failures here are fatal
	resp, err := g.client.GetReport(quote)
	if err != nil {
		var perr *ias.ProtocolError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, &NetworkError{Op: "report submission", Err: err}
	}

	// (10) final artifact
	return &report.EndorsedAttestationReport{
		AVR:         string(resp.Body),
		Signature:   resp.Signature,
		SigningCert: resp.SigningCert,
	}, nil
}
