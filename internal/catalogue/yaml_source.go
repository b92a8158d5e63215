package catalogue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

// yamlFile is the declarative catalogue document shape.
type yamlFile struct {
	Intents []*models.IntentDefinition `yaml:"intents"`
}

// YAMLSource reads the intent catalogue from a YAML file on disk — the
// bootstrap/dev path for C2, ahead of a Postgres-table source of truth in
// server deployments.
type YAMLSource struct {
	path string
}

// NewYAMLSource creates a YAMLSource reading from path.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

// Checksum implements ports.CatalogueSource via a content hash of the raw
// file bytes, cheap enough to poll periodically.
func (s *YAMLSource) Checksum(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read catalogue file %q: %w", s.path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Load implements ports.CatalogueSource.
func (s *YAMLSource) Load(ctx context.Context) ([]*models.IntentDefinition, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue file %q: %w", s.path, err)
	}
	var doc yamlFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalogue file %q: %w", s.path, err)
	}
	return doc.Intents, nil
}
