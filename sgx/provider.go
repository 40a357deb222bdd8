package sgx

// QuoteProvider is the platform quoting capability. The hardware
// implementation lives behind the enclave boundary; SimProvider is the
// software backend used for standalone mode and tests. Both are selectable
// at run time, so the generation protocol stays backend-agnostic.
type QuoteProvider interface {
	// InitQuote returns the quoting enclave's target info and the
	// platform's EPID group ID.
	InitQuote() (TargetInfo, EPIDGroupID, error)

	// CreateReport produces a local report binding data to the platform
	// identity, targeted at the given enclave.
	CreateReport(ti TargetInfo, data ReportData) (Report, error)

	// GetQuote converts a local report into a portable quote. The returned
	// self-check report binds SHA256(nonce || quote) into its report data
	// so the caller can detect tampering by the untrusted stack.
	GetQuote(sigrl []byte, report Report, signType QuoteSignType, spid Spid, nonce QuoteNonce) (quote []byte, selfCheck Report, err error)

	// VerifyReport checks that a report was produced on this platform.
	VerifyReport(report Report) error
}
