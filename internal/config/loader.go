package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// secretRef matches a ${NAME} reference in a credential field.
var secretRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars resolves ${NAME} references. Unset names stay as written so
// a missing secret shows up verbatim in validation and logs.
func expandEnvVars(s string) string {
	return secretRef.ReplaceAllStringFunc(s, func(ref string) string {
		if val, ok := os.LookupEnv(secretRef.FindStringSubmatch(ref)[1]); ok {
			return val
		}
		return ref
	})
}

// expandSensitiveFields resolves secret references in every credential.
func expandSensitiveFields(cfg *Config) {
	for _, field := range []*string{&cfg.Gateway.Auth.Token, &cfg.Gateway.Auth.Password} {
		*field = expandEnvVars(*field)
	}
	if irc := cfg.Channels.IRC; irc != nil {
		irc.Password = expandEnvVars(irc.Password)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	return Parse(data)
}

// Parse decodes YAML config bytes and applies defaults and environment overrides.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)

	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ParseRaw decodes a raw config map the same way Parse decodes a file.
func ParseRaw(raw map[string]any) (Config, error) {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return Defaults(), &ConfigError{Message: "failed to encode config: " + err.Error()}
	}
	return Parse(data)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = defaultPort
	}
	if cfg.Gateway.Mode == "" {
		cfg.Gateway.Mode = "local"
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
	if cfg.Dialog.ReplyDelayMs == 0 {
		cfg.Dialog.ReplyDelayMs = defaultReplyDelayMs
	}
	if cfg.Dialog.Acknowledgement == "" {
		cfg.Dialog.Acknowledgement = defaultAcknowledgement
	}
	if cfg.Registry.Store == "" {
		cfg.Registry.Store = "memory"
	}
	if irc := cfg.Channels.IRC; irc != nil && irc.Mention == "" {
		irc.Mention = irc.Nick
	}
}

// envOverrides maps ARBITER_* variables onto config fields. Values that do
// not parse are ignored.
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, v string)
}{
	{"ARBITER_GATEWAY_PORT", func(cfg *Config, v string) { setInt(&cfg.Gateway.Port, v) }},
	{"ARBITER_GATEWAY_BIND", func(cfg *Config, v string) { cfg.Gateway.Bind = v }},
	{"ARBITER_LOG_LEVEL", func(cfg *Config, v string) { cfg.Logging.Level = strings.ToLower(v) }},
	{"ARBITER_REPLY_DELAY_MS", func(cfg *Config, v string) { setInt(&cfg.Dialog.ReplyDelayMs, v) }},
	{"ARBITER_REGISTRY_STORE", func(cfg *Config, v string) { cfg.Registry.Store = strings.ToLower(v) }},
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
