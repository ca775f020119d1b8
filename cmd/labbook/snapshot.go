package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hylla/labbook/internal/app"
	"gopkg.in/yaml.v3"
)

// snapshotFormat resolves an explicit format or infers one from the file extension.
func snapshotFormat(explicit, path string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(explicit))
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			format = "yaml"
		default:
			format = "json"
		}
	}
	switch format {
	case "json", "yaml":
		return format, nil
	default:
		return "", fmt.Errorf("unsupported snapshot format %q", explicit)
	}
}

// encodeSnapshot renders snap as indented JSON or as YAML using the JSON field names.
func encodeSnapshot(snap app.Snapshot, format string) ([]byte, error) {
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot json: %w", err)
	}
	if format == "json" {
		return append(encoded, '\n'), nil
	}

	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("bridge snapshot json: %w", err)
	}
	out, err := yaml.Marshal(plainNumbers(generic))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot yaml: %w", err)
	}
	return out, nil
}

// decodeSnapshot parses JSON or YAML content into a snapshot.
func decodeSnapshot(content []byte, format string) (app.Snapshot, error) {
	var snap app.Snapshot
	if format == "yaml" {
		var generic any
		if err := yaml.Unmarshal(content, &generic); err != nil {
			return app.Snapshot{}, fmt.Errorf("decode snapshot yaml: %w", err)
		}
		bridged, err := json.Marshal(generic)
		if err != nil {
			return app.Snapshot{}, fmt.Errorf("bridge snapshot yaml: %w", err)
		}
		content = bridged
	}
	if err := json.Unmarshal(content, &snap); err != nil {
		return app.Snapshot{}, fmt.Errorf("decode snapshot json: %w", err)
	}
	return snap, nil
}

// plainNumbers converts json.Number leaves so YAML emits integers without exponents.
func plainNumbers(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			v[key] = plainNumbers(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = plainNumbers(item)
		}
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return v
	}
}

// runExport writes a snapshot to outPath, or to stdout for "-".
func runExport(ctx context.Context, svc *app.Service, outPath, format string, stdout io.Writer) error {
	resolved, err := snapshotFormat(format, outPath)
	if err != nil {
		return err
	}
	snap, err := svc.ExportSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	encoded, err := encodeSnapshot(snap, resolved)
	if err != nil {
		return err
	}

	if outPath == "" || outPath == "-" {
		if _, err := stdout.Write(encoded); err != nil {
			return fmt.Errorf("write snapshot to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create export output dir: %w", err)
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}

// runImport reads a snapshot file and merges it into the store.
func runImport(ctx context.Context, svc *app.Service, inPath, format string) error {
	resolved, err := snapshotFormat(format, inPath)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	snap, err := decodeSnapshot(content, resolved)
	if err != nil {
		return err
	}
	if err := svc.ImportSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	return nil
}
