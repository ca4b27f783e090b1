package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/poldracklab/cogat/internal/platform/neo4jdb"
)

const (
	BackendNeo4j  = "neo4j"
	BackendMemory = "memory"
)

type Config struct {
	ServiceName     string
	Version         string
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// GraphBackend is "neo4j" or "memory".
	GraphBackend string
	Neo4j        neo4jdb.Config
	// CatalogPath overrides the embedded entity catalog.
	CatalogPath string

	LogMode    string
	LogLevel   string
	LogHashIDs bool

	// JWTSecret verifies curator tokens. Writes are rejected when empty.
	JWTSecret   string
	CORSOrigins []string

	MetricsEnabled bool
}

func (c Config) Validate() error {
	switch c.GraphBackend {
	case BackendNeo4j:
		if strings.TrimSpace(c.Neo4j.URI) == "" {
			return fmt.Errorf("config: neo4j backend needs a uri")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown graph backend %q", c.GraphBackend)
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("config: http address required")
	}
	return nil
}

// SplitList parses a comma separated flag value.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
