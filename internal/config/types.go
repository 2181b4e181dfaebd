package config

// Config is the root configuration for Arbiter.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Dialog   DialogConfig   `yaml:"dialog,omitempty"`
	Registry RegistryConfig `yaml:"registry,omitempty"`
	Channels ChannelsConfig `yaml:"channels,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Hooks    HooksConfig    `yaml:"hooks,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int              `yaml:"port,omitempty"`
	Mode           string           `yaml:"mode,omitempty"` // "local" | "remote"
	Bind           string           `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string           `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth      `yaml:"auth,omitempty"`
	TLS            GatewayTLS       `yaml:"tls,omitempty"`
	ControlUI      GatewayControlUI `yaml:"controlUi,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// GatewayControlUI configures which browser origins may open the transcript UI.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// DialogConfig tunes the conversational controller.
type DialogConfig struct {
	ReplyDelayMs    int          `yaml:"replyDelayMs,omitempty"`
	Acknowledgement string       `yaml:"acknowledgement,omitempty"`
	DefaultModel    string       `yaml:"defaultModel,omitempty"`
	Models          []ModelEntry `yaml:"models,omitempty"` // replaces the built-in catalog when set
}

// ModelEntry maps a human-readable label offered by the wizard to a model identifier.
type ModelEntry struct {
	Label string `yaml:"label"`
	ID    string `yaml:"id"`
}

// RegistryConfig selects the agent registry backend.
type RegistryConfig struct {
	Store string `yaml:"store,omitempty"` // "memory" | "sqlite"
}

// ChannelsConfig defines channel-specific configurations.
type ChannelsConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines IRC channel settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
	OpOnly   bool     `yaml:"opOnly,omitempty"`  // restrict to channel operators
	Owner    string   `yaml:"owner,omitempty"`   // only accept turns from this nick when set
	Mention  string   `yaml:"mention,omitempty"` // keyword a line must contain; defaults to the nick
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// HooksConfig defines shell commands run on coordinator events.
type HooksConfig struct {
	AgentCreated     []HookEntry `yaml:"agentCreated,omitempty"`
	AgentDeleted     []HookEntry `yaml:"agentDeleted,omitempty"`
	WizardCompleted  []HookEntry `yaml:"wizardCompleted,omitempty"`
	SubAgentsUpdated []HookEntry `yaml:"subagentsUpdated,omitempty"`
	GatewayStart     []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop      []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
