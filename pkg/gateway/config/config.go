package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// STTProviderName selects which speech-to-text backend to run.
type STTProviderName string

const (
	STTWhisper      STTProviderName = "whisper"
	STTGoogleSpeech STTProviderName = "google"
)

type Config struct {
	Addr string

	// Vendor credentials. OpenAIAPIKey is mandatory because both the
	// default transcription and synthesis paths run through OpenAI.
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string
	DeepgramAPIKey  string

	// Override base URLs, mainly for tests and self-hosted gateways.
	OpenAIBaseURL    string
	AnthropicBaseURL string
	DeepgramSpeakURL string

	// Model selection per stage.
	STTProvider    STTProviderName
	WhisperModel   string
	OpenAIModel    string
	AnthropicModel string
	GeminiModel    string
	TTSVoice       string
	DeepgramVoice  string

	// UseDeepgramTTS switches synthesis to the Deepgram Speak API when a
	// Deepgram key is present.
	UseDeepgramTTS bool

	// SystemDirective overrides the built-in conversation directive.
	SystemDirective string

	Temperature float64
	Language    string

	// Utterance capture cap in bytes. A turn whose audio exceeds this
	// fails; the connection survives.
	MaxUtteranceBytes int64

	// REST body cap for the one-shot endpoints.
	MaxBodyBytes int64

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// WebSocket session tuning.
	WSPingInterval    time.Duration
	WSWriteTimeout    time.Duration
	WSReadTimeout     time.Duration
	WSMaxControlBytes int64
	WSOutboundQueue   int
	WSMaxFrameBytes   int64
	TurnTimeout       time.Duration
	HandshakeTimeout  time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOICELOOP_ADDR", ":8080"),
		OpenAIAPIKey:        strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		AnthropicAPIKey:     strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		GeminiAPIKey:        strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		DeepgramAPIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
		OpenAIBaseURL:       envOr("VOICELOOP_OPENAI_BASE_URL", ""),
		AnthropicBaseURL:    envOr("VOICELOOP_ANTHROPIC_BASE_URL", ""),
		DeepgramSpeakURL:    envOr("VOICELOOP_DEEPGRAM_SPEAK_URL", ""),
		STTProvider:         STTProviderName(envOr("VOICELOOP_STT_PROVIDER", string(STTWhisper))),
		WhisperModel:        envOr("VOICELOOP_WHISPER_MODEL", "whisper-1"),
		OpenAIModel:         envOr("VOICELOOP_OPENAI_MODEL", "gpt-4o"),
		AnthropicModel:      envOr("VOICELOOP_ANTHROPIC_MODEL", "claude-3-7-sonnet-latest"),
		GeminiModel:         envOr("VOICELOOP_GEMINI_MODEL", "gemini-2.0-flash"),
		TTSVoice:            envOr("VOICELOOP_TTS_VOICE", "nova"),
		DeepgramVoice:       envOr("VOICELOOP_DEEPGRAM_VOICE", "aura-asteria-en"),
		UseDeepgramTTS:      envBoolOr("VOICELOOP_USE_DEEPGRAM_TTS", false),
		SystemDirective:     os.Getenv("VOICELOOP_SYSTEM_DIRECTIVE"),
		Temperature:         envFloat64Or("VOICELOOP_TEMPERATURE", 0.7),
		Language:            envOr("VOICELOOP_LANGUAGE", ""),
		MaxUtteranceBytes:   envInt64Or("VOICELOOP_MAX_UTTERANCE_BYTES", 10<<20), // 10 MiB
		MaxBodyBytes:        envInt64Or("VOICELOOP_MAX_BODY_BYTES", 12<<20),
		CORSAllowedOrigins:  make(map[string]struct{}),
		WSPingInterval:      envDurationOr("VOICELOOP_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("VOICELOOP_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:       envDurationOr("VOICELOOP_WS_READ_TIMEOUT", 0),
		WSMaxControlBytes:   envInt64Or("VOICELOOP_WS_MAX_CONTROL_BYTES", 64*1024),
		WSOutboundQueue:     envIntOr("VOICELOOP_WS_OUTBOUND_QUEUE", 64),
		WSMaxFrameBytes:     envInt64Or("VOICELOOP_WS_MAX_FRAME_BYTES", 1<<20),
		TurnTimeout:         envDurationOr("VOICELOOP_TURN_TIMEOUT", 60*time.Second),
		HandshakeTimeout:    envDurationOr("VOICELOOP_HANDSHAKE_TIMEOUT", 5*time.Second),
		ReadHeaderTimeout:   envDurationOr("VOICELOOP_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VOICELOOP_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("VOICELOOP_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY must be set")
	}

	switch cfg.STTProvider {
	case STTWhisper, STTGoogleSpeech:
	default:
		return Config{}, fmt.Errorf("VOICELOOP_STT_PROVIDER must be one of whisper|google")
	}

	if cfg.UseDeepgramTTS && cfg.DeepgramAPIKey == "" {
		return Config{}, fmt.Errorf("DEEPGRAM_API_KEY must be set when VOICELOOP_USE_DEEPGRAM_TTS is enabled")
	}

	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return Config{}, fmt.Errorf("VOICELOOP_TEMPERATURE must be in [0, 2]")
	}
	if cfg.MaxUtteranceBytes <= 0 {
		return Config{}, fmt.Errorf("VOICELOOP_MAX_UTTERANCE_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("VOICELOOP_MAX_BODY_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOICELOOP_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICELOOP_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("VOICELOOP_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.WSMaxControlBytes <= 0 {
		return Config{}, fmt.Errorf("VOICELOOP_WS_MAX_CONTROL_BYTES must be > 0")
	}
	if cfg.WSOutboundQueue <= 0 {
		return Config{}, fmt.Errorf("VOICELOOP_WS_OUTBOUND_QUEUE must be > 0")
	}
	if cfg.WSMaxFrameBytes <= 0 {
		return Config{}, fmt.Errorf("VOICELOOP_WS_MAX_FRAME_BYTES must be > 0")
	}
	if cfg.WSMaxFrameBytes > cfg.MaxUtteranceBytes {
		return Config{}, fmt.Errorf("VOICELOOP_WS_MAX_FRAME_BYTES must be <= VOICELOOP_MAX_UTTERANCE_BYTES")
	}
	if cfg.TurnTimeout < 0 {
		return Config{}, fmt.Errorf("VOICELOOP_TURN_TIMEOUT must be >= 0")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICELOOP_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICELOOP_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICELOOP_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
