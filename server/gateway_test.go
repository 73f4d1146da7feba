package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/graphql-hive/federation-router/internal/config"
)

func TestTrafficShapingToSettingsParsesDurations(t *testing.T) {
	settings := trafficShapingToSettings(config.SubgraphTrafficShaping{
		TimeoutDuration: "5s",
		MaxRetries:      3,
		InitialDelay:    "100ms",
		BackoffFactor:   2.0,
		MaxDelay:        "1s",
		DedupeEnabled:   true,
	})

	if settings.Timeout.Seconds() != 5 {
		t.Errorf("expected a 5s timeout, got %v", settings.Timeout)
	}
	if settings.Retry.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", settings.Retry.MaxRetries)
	}
	if !settings.DedupeEnabled {
		t.Error("expected dedupe to be enabled")
	}
}

func TestTrafficShapingToSettingsToleratesUnparsableDurations(t *testing.T) {
	settings := trafficShapingToSettings(config.SubgraphTrafficShaping{TimeoutDuration: "not-a-duration"})
	if settings.Timeout != 0 {
		t.Errorf("expected a zero timeout for an unparsable duration, got %v", settings.Timeout)
	}
}

func TestBuildSupergraphSourceFileModeRequiresPath(t *testing.T) {
	cfg := &config.Config{Supergraph: config.SupergraphSourceConfig{Mode: "file"}}
	if _, err := buildSupergraphSource(cfg); err == nil {
		t.Fatal("expected an error when file mode has no path configured")
	}
}

func TestBuildSupergraphSourceFileModeSucceeds(t *testing.T) {
	cfg := &config.Config{Supergraph: config.SupergraphSourceConfig{Mode: "file", Path: "supergraph.yaml"}}
	source, err := buildSupergraphSource(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source == nil {
		t.Fatal("expected a non-nil source")
	}
}

func TestBuildSupergraphSourceRemoteModeBuildsEndpoints(t *testing.T) {
	cfg := &config.Config{Supergraph: config.SupergraphSourceConfig{
		Mode: "remote",
		Subgraphs: []config.SubgraphEndpoint{
			{Name: "accounts", Host: "http://accounts.internal/graphql"},
		},
		PollInterval: "10s",
	}}
	source, err := buildSupergraphSource(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source == nil {
		t.Fatal("expected a non-nil source")
	}
}

func TestBuildSupergraphSourceRejectsUnknownMode(t *testing.T) {
	cfg := &config.Config{Supergraph: config.SupergraphSourceConfig{Mode: "carrier-pigeon"}}
	if _, err := buildSupergraphSource(cfg); err == nil {
		t.Fatal("expected an error for an unknown supergraph.mode")
	}
}

func TestDecodeSupergraphSourcesRemoteModeDecodesJSON(t *testing.T) {
	cfg := &config.Config{Supergraph: config.SupergraphSourceConfig{Mode: "remote"}}
	payload := []byte(`[{"Name":"accounts","Host":"http://accounts.internal","SDL":"dHlwZSBRdWVyeSB7IGlkOiBJRCB9"}]`)

	sources, err := decodeSupergraphSources(cfg, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sources) != 1 || sources[0].Name != "accounts" {
		t.Fatalf("expected one accounts source, got %+v", sources)
	}
}

func TestDecodeSupergraphSourcesFileModeReadsSchemaFiles(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "accounts.graphql")
	if err := os.WriteFile(schemaPath, []byte("type Query { id: ID }"), 0o644); err != nil {
		t.Fatalf("writing fixture schema file: %v", err)
	}

	cfg := &config.Config{Supergraph: config.SupergraphSourceConfig{Mode: "file"}}
	manifest := []byte(`
subgraphs:
  - name: accounts
    host: http://accounts.internal/graphql
    schema_files:
      - ` + schemaPath + `
`)

	sources, err := decodeSupergraphSources(cfg, manifest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected one subgraph source, got %d", len(sources))
	}
	if sources[0].Name != "accounts" || sources[0].Host != "http://accounts.internal/graphql" {
		t.Fatalf("unexpected source: %+v", sources[0])
	}
	if string(sources[0].SDL) != "type Query { id: ID }\n" {
		t.Fatalf("unexpected SDL: %q", sources[0].SDL)
	}
}

func TestDecodeSupergraphSourcesFileModeMissingFileErrors(t *testing.T) {
	cfg := &config.Config{Supergraph: config.SupergraphSourceConfig{Mode: "file"}}
	manifest := []byte(`
subgraphs:
  - name: accounts
    host: http://accounts.internal/graphql
    schema_files:
      - /nonexistent/accounts.graphql
`)

	if _, err := decodeSupergraphSources(cfg, manifest); err == nil {
		t.Fatal("expected an error when a schema file is missing")
	}
}
