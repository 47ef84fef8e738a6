package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoSite Configuration File
#
# Every value can be overridden with an environment variable named
# DITTOSITE_<SECTION>_<KEY>, e.g. DITTOSITE_LOGGING_LEVEL=DEBUG.
`

// sectionComments are written above each top-level section.
var sectionComments = map[string]string{
	"logging":  "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, file path)",
	"server":   "Server-wide settings. debug exposes error details and the ?md=1 metadata dump",
	"http":     "Web adapter. rate_limit.requests_per_second 0 disables per-client limiting",
	"cache":    "Cache store: memory, filesystem, badger, bbolt or s3. Only the section matching type is used",
	"remote":   "Content store: memory (seed_path loads a local directory) or s3",
	"identity": "Author account. Without an oidc issuer every login is accepted as the author",
	"metrics":  "Prometheus endpoint",
}

// InitConfig writes a default configuration file to the default location.
//
// Returns the path written. Fails if the file exists and force is false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, with a
// freshly generated session secret.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	cfg := GetDefaultConfig()
	secret, err := newSessionSecret()
	if err != nil {
		return err
	}
	cfg.HTTP.SessionSecret = secret

	data, err := GenerateYAMLWithComments(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file carries secrets
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateYAMLWithComments renders cfg as YAML with a header and a comment
// above each section.
func GenerateYAMLWithComments(cfg *Config) ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			if comment, ok := sectionComments[key.Value]; ok {
				key.HeadComment = comment
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return buf.Bytes(), nil
}

func newSessionSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
