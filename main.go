package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"tee-ra/ias"
	"tee-ra/keybind"
	"tee-ra/ra"
	"tee-ra/report"
	"tee-ra/sgx"
	"tee-ra/shared"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Demo pipeline: generate an attestation for a fresh enclave key against
// either the hosted attestation service or the offline simulator, then
// verify the artifact and recover the attested key address.
func main() {
	// Load .env if present; real env takes precedence
	_ = godotenv.Load()

	logger, err := shared.NewLoggerFromEnv("ra")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Critical("attestation pipeline failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *shared.Logger) error {
	provider := sgx.NewSimProvider()

	var (
		client  ias.ServiceClient
		rootPEM []byte
	)
	if key := shared.GetEnvOrDefault("IAS_SUBSCRIPTION_KEY", ""); key != "" {
		rootPath := shared.GetEnvOrDefault("IAS_ROOT_CA_FILE", "")
		if rootPath == "" {
			return fmt.Errorf("IAS_ROOT_CA_FILE is required when IAS_SUBSCRIPTION_KEY is set")
		}
		var err error
		rootPEM, err = os.ReadFile(rootPath)
		if err != nil {
			return fmt.Errorf("failed to read trust root: %v", err)
		}
		client = ias.NewClient(ias.Config{
			Host:            shared.GetEnvOrDefault("IAS_HOST", ias.DefaultHost),
			SigRLPath:       shared.GetEnvOrDefault("IAS_SIGRL_PATH", ias.DefaultSigRLPath),
			ReportPath:      shared.GetEnvOrDefault("IAS_REPORT_PATH", ias.DefaultReportPath),
			SubscriptionKey: key,
		}, logger)
		logger.Info("using hosted attestation service")
	} else {
		authority, err := ias.NewSigningAuthority(time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
		if err != nil {
			return err
		}
		client = ias.NewSimulator(authority)
		rootPEM = authority.RootPEM
		logger.Info("using simulated attestation service")
	}

	var spid sgx.Spid
	if spidHex := shared.GetEnvOrDefault("IAS_SPID", ""); spidHex != "" {
		raw, err := hex.DecodeString(spidHex)
		if err != nil || len(raw) != sgx.SpidLen {
			return fmt.Errorf("IAS_SPID must be %d hex-encoded bytes", sgx.SpidLen)
		}
		copy(spid[:], raw)
	}

	key, err := keybind.GenerateEnclaveKey()
	if err != nil {
		return err
	}
	logger.Info("generated enclave key", zap.String("address", keybind.KeyAddress(key).Hex()))

	generator := ra.NewGenerator(provider, client, logger)
	endorsed, err := generator.CreateAttestationReport(keybind.Commitment(key), sgx.UnlinkableQuote, spid)
	if err != nil {
		return err
	}

	verifier, err := report.NewVerifier(rootPEM)
	if err != nil {
		return err
	}
	if err := verifier.Verify(endorsed, time.Now()); err != nil {
		return err
	}

	avr, err := endorsed.GetAVR()
	if err != nil {
		return err
	}
	quote, err := avr.ParseQuote()
	if err != nil {
		return err
	}
	address, err := quote.GetEnclaveKeyAddress()
	if err != nil {
		return err
	}

	logger.Info("attestation verified",
		zap.String("report_id", avr.ID),
		zap.String("quote_status", quote.Status),
		zap.Time("attestation_time", quote.AttestationTime),
		zap.String("enclave_key_address", address.Hex()),
	)
	if address != keybind.KeyAddress(key) {
		return fmt.Errorf("attested address %s does not match enclave key %s", address.Hex(), keybind.KeyAddress(key).Hex())
	}
	return nil
}
