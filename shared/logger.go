package shared

import (
	"go.uber.org/zap"
)

// LoggerConfig holds the configuration for the logger
type LoggerConfig struct {
	ServiceName string // "ra", "ias" or "verifier"
	EnclaveMode bool   // true if running in enclave
	Development bool   // true for development mode
}

// Logger wraps zap.Logger with additional context
type Logger struct {
	*zap.Logger
	serviceName string
	enclaveMode bool
}

// NewLogger creates a new logger instance based on the configuration
func NewLogger(config LoggerConfig) (*Logger, error) {
	var zapLogger *zap.Logger
	var err error

	if config.EnclaveMode {
		// In enclave mode, use minimal logging (error-only) for security
		// This reduces attack surface and prevents information leakage
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
		zapConfig.DisableCaller = true
		zapConfig.DisableStacktrace = true
		zapLogger, err = zapConfig.Build()
	} else if config.Development {
		// Development mode: console logging with debug level
		zapConfig := zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zapLogger, err = zapConfig.Build()
	} else {
		// Standalone production mode: structured JSON logging
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = zapConfig.Build()
	}

	if err != nil {
		return nil, err
	}

	// Add service-specific fields
	zapLogger = zapLogger.With(
		zap.String("service", config.ServiceName),
		zap.Bool("enclave_mode", config.EnclaveMode),
	)

	return &Logger{
		Logger:      zapLogger,
		serviceName: config.ServiceName,
		enclaveMode: config.EnclaveMode,
	}, nil
}

// NewLoggerFromEnv creates a logger using environment variables
func NewLoggerFromEnv(serviceName string) (*Logger, error) {
	config := LoggerConfig{
		ServiceName: serviceName,
		EnclaveMode: GetEnvBoolOrDefault("ENCLAVE_MODE", false),
		Development: GetEnvBoolOrDefault("DEVELOPMENT", false),
	}
	return NewLogger(config)
}

// Step-aware logging for the attestation protocol
func (l *Logger) WithStep(step string) *zap.Logger {
	if step == "" {
		return l.Logger
	}
	return l.Logger.With(zap.String("protocol_step", step))
}

// Group-aware logging for attestation service exchanges
func (l *Logger) WithGroup(gid uint32) *zap.Logger {
	return l.Logger.With(zap.Uint32("epid_group", gid))
}

// Crypto-aware logging methods
func (l *Logger) WithCryptoOp(operation string) *zap.Logger {
	return l.Logger.With(zap.String("crypto_operation", operation))
}

// Critical error logging - always logs even in enclave mode
func (l *Logger) Critical(msg string, fields ...zap.Field) {
	// Critical errors are always logged regardless of mode
	l.Logger.Error(msg, append(fields, zap.Bool("critical", true))...)
}

// Security event logging - for security-relevant events such as
// integrity-check failures
func (l *Logger) Security(msg string, fields ...zap.Field) {
	// Security events are always logged regardless of mode
	l.Logger.Warn(msg, append(fields, zap.Bool("security_event", true))...)
}

// Conditional debug logging - only logs in non-enclave mode
func (l *Logger) DebugIf(msg string, fields ...zap.Field) {
	if !l.enclaveMode {
		l.Logger.Debug(msg, fields...)
	}
}

// Conditional info logging - respects enclave mode settings
func (l *Logger) InfoIf(msg string, fields ...zap.Field) {
	if !l.enclaveMode {
		l.Logger.Info(msg, fields...)
	}
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// NopLogger returns a logger that discards everything. Used by tests and by
// callers that construct components without a logging context.
func NopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}
