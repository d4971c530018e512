package config

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// document is the on-disk shape of the config file.
type document struct {
	BotToken       string `toml:"bot-token,omitempty"`
	StoreURI       string `toml:"store-uri"`
	TimeoutSeconds int    `toml:"timeout-seconds"`
	GuildID        string `toml:"guild-id,omitempty"`
	LogDir         string `toml:"log-dir"`
	LogLevel       string `toml:"log-level"`
}

// Template renders a config file with defaults filled in. When c is non-nil
// its values are used instead. The token is never written, so it keeps
// coming from the environment.
func Template(c *ExecConfig) ([]byte, error) {
	doc := document{
		StoreURI:       "file://aegistrate.json",
		TimeoutSeconds: defaultTimeoutSeconds,
		LogDir:         defaultLogDir,
		LogLevel:       "info",
	}
	if c != nil {
		doc.StoreURI = c.StoreURI
		doc.TimeoutSeconds = int(c.StartupTimeout.Seconds())
		doc.GuildID = c.GuildID
		doc.LogDir = c.LogDir
		doc.LogLevel = c.LogLevel.String()
	}
	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("render config template: %w", err)
	}
	return out, nil
}
