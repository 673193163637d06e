package constants

import "time"

const DefaultGeminiModel = "gemini-3-flash-preview"

const DefaultOpenAIModel = "gpt-5-mini"

var AIInputLimits = struct {
	MaxFieldLength  int
	MaxAutofillURLs int
	MaxURLLength    int
}{
	MaxFieldLength:  2000,
	MaxAutofillURLs: 10,
	MaxURLLength:    2048,
}

// CircuitBreakerConfig applies per model operation when AI_CIRCUIT_BREAKER_ENABLED is set.
var CircuitBreakerConfig = struct {
	FailureThreshold    int
	Cooldown            time.Duration
	RateLimitCooldown   time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}{
	FailureThreshold:    3,
	Cooldown:            30 * time.Second,
	RateLimitCooldown:   1 * time.Hour, // 429
	HealthCheckInterval: 10 * time.Second,
	HealthCheckTimeout:  10 * time.Second,
}

var PreviewConfig = struct {
	Timeout        time.Duration
	Concurrency    int
	MaxBodyBytes   int64
	UserAgent      string
	AcceptLanguage string
}{
	Timeout:        10 * time.Second,
	Concurrency:    4,
	MaxBodyBytes:   2 << 20,
	UserAgent:      "Mozilla/5.0 (compatible; SalesIntelBot/1.0)",
	AcceptLanguage: "en,en-US;q=0.9",
}

var CacheTTL = struct {
	Autofill time.Duration
}{
	Autofill: 6 * time.Hour,
}

var ArchiveConfig = struct {
	DefaultListLimit int
	MaxListLimit     int
}{
	DefaultListLimit: 20,
	MaxListLimit:     100,
}

var WebSocketConfig = struct {
	MaxMessageBytes int64
	WriteTimeout    time.Duration
}{
	MaxMessageBytes: 64 << 10,
	WriteTimeout:    10 * time.Second,
}
