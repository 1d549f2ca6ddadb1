// Package config persists launcher settings in config.json under the app
// data directory.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

const (
	userIDKey          = "analytics-user-id"
	cmdArgumentsKey    = "cmd-arguments"
	clientArgumentsKey = "client-additional-arguments"
)

// Config reads and writes the launcher config file. Unknown keys written by
// other launcher versions are preserved.
type Config struct {
	path string
}

func New(path string) *Config {
	return &Config{path: path}
}

func (c *Config) content() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var content map[string]json.RawMessage
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return content, nil
}

func (c *Config) write(content map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) stringValue(key string) (value string, ok bool, err error) {
	content, err := c.content()
	if err != nil {
		return "", false, err
	}
	raw, ok := content[key]
	if !ok {
		return "", false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false, fmt.Errorf("value under key %s is in a wrong format: %w", key, err)
	}
	return value, true, nil
}

// UserID returns the stable analytics user id, generating and persisting
// one on first use.
func (c *Config) UserID() (string, error) {
	id, ok, err := c.stringValue(userIDKey)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	content, err := c.content()
	if err != nil {
		return "", err
	}
	id = uuid.NewString()
	raw, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	content[userIDKey] = raw
	if err := c.write(content); err != nil {
		return "", err
	}
	return id, nil
}

// CmdArguments returns extra launcher arguments configured in the file,
// space-joined in storage.
func (c *Config) CmdArguments() ([]string, error) {
	return c.fieldsValue(cmdArgumentsKey)
}

// ClientAdditionalArguments returns extra arguments appended to the client
// argv, space-joined in storage.
func (c *Config) ClientAdditionalArguments() ([]string, error) {
	return c.fieldsValue(clientArgumentsKey)
}

func (c *Config) fieldsValue(key string) ([]string, error) {
	value, ok, err := c.stringValue(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return strings.Fields(value), nil
}
