package model

// ================ Config ================

type ConversationConfig struct {
	TTL string `envconfig:"CONVERSATION_TTL" default:"15m"`
	// DefaultSession is the session key used when a chat request carries no
	// session id, matching the single process-wide conversation of the
	// original deployment.
	DefaultSession string `envconfig:"CONVERSATION_DEFAULT_SESSION" default:"default"`
}

type ChatModelConfig struct {
	Model       string  `envconfig:"CHAT_MODEL" default:"gemini-2.5-pro"`
	MaxTokens   int     `envconfig:"CHAT_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"CHAT_TEMPERATURE" default:"0.2"`
}
