package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atcwatch/skyguard/internal/model"
)

// exportJSON writes the session data to a JSON file. Caller holds the lock.
func (b *Backend) exportJSON() error {
	if b.session == nil {
		return fmt.Errorf("no active session to export")
	}
	export := b.buildExport()

	sessionID := strings.ReplaceAll(b.session.ID, " ", "_")
	sessionID = strings.ReplaceAll(sessionID, ":", "_")
	timestamp := b.session.StartedAt.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", sessionID, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", sessionID, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

// exportBody is the root JSON structure of an exported archive.
type exportBody struct {
	Session     model.Session             `json:"session"`
	Alerts      []AlertRecord             `json:"alerts"`
	Outcomes    []model.StrategyOutcome   `json:"outcomes"`
	Events      []model.EventRecord       `json:"events"`
	Performance []model.PerformanceRecord `json:"performance"`
}

func (b *Backend) buildExport() exportBody {
	export := exportBody{
		Session:     *b.session,
		Alerts:      make([]AlertRecord, 0, len(b.alerts)),
		Outcomes:    b.outcomes,
		Events:      b.events,
		Performance: b.performance,
	}
	for _, record := range b.alerts {
		export.Alerts = append(export.Alerts, *record)
	}
	return export
}

func (b *Backend) writeJSON(path string, export exportBody) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

func (b *Backend) writeGzipJSON(path string, export exportBody) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	defer gz.Close()

	enc := json.NewEncoder(gz)
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}
