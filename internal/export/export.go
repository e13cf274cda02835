// Package export renders completed mission findings into output documents.
// The orchestrator treats exporting as best-effort: an unsupported format or
// a write failure becomes a failed action, never a mission failure.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chronicle/internal/mission"
)

// Exporter renders a mission's findings into a single output format.
type Exporter interface {
	Export(ctx context.Context, m *mission.Mission, format string, includeMetadata bool, prefix string) mission.Action
}

// FileExporter writes export documents under a per-mission directory.
type FileExporter struct {
	dir string
	log *zap.Logger
}

// NewFileExporter creates an exporter rooted at dir.
func NewFileExporter(dir string, log *zap.Logger) *FileExporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileExporter{dir: dir, log: log}
}

// Export renders the mission into the requested format. The returned action
// carries either the file reference or the failure reason.
func (e *FileExporter) Export(ctx context.Context, m *mission.Mission, format string, includeMetadata bool, prefix string) mission.Action {
	action := mission.Action{
		ID:     fmt.Sprintf("exp_%s", uuid.NewString()[:8]),
		Type:   "export",
		Format: strings.ToLower(format),
		At:     time.Now().UTC(),
	}

	missionDir := filepath.Join(e.dir, m.ID)
	if err := os.MkdirAll(missionDir, 0o755); err != nil {
		return failed(action, fmt.Errorf("failed to create export directory: %w", err))
	}

	base := prefix
	if base == "" {
		base = fmt.Sprintf("chronicle_%s", m.ID)
	}
	stamp := time.Now().Format("20060102_150405")

	var (
		path string
		err  error
	)
	switch action.Format {
	case "json":
		path = filepath.Join(missionDir, fmt.Sprintf("%s_%s.json", base, stamp))
		err = e.writeJSON(path, m, includeMetadata)
	case "csv":
		path = filepath.Join(missionDir, fmt.Sprintf("%s_%s.csv", base, stamp))
		err = e.writeCSV(path, m)
	case "md", "markdown":
		path = filepath.Join(missionDir, fmt.Sprintf("%s_%s.md", base, stamp))
		err = e.writeMarkdown(path, m)
	default:
		return failed(action, fmt.Errorf("unsupported format: %s", format))
	}
	if err != nil {
		return failed(action, err)
	}

	action.Status = "success"
	action.FilePath = path
	action.RecordCount = len(m.Findings)
	e.log.Info("exported mission",
		zap.String("mission_id", m.ID),
		zap.String("format", action.Format),
		zap.String("path", path))
	return action
}

func failed(action mission.Action, err error) mission.Action {
	action.Status = "failed"
	action.Error = err.Error()
	return action
}

func (e *FileExporter) writeJSON(path string, m *mission.Mission, includeMetadata bool) error {
	data := map[string]any{
		"synthesis":      m.Synthesis,
		"findings":       m.Findings,
		"research_stats": researchStats(m.Findings),
	}
	if includeMetadata {
		data["metadata"] = map[string]any{
			"mission_id":     m.ID,
			"goal":           m.Goal,
			"criteria":       m.Criteria,
			"total_findings": len(m.Findings),
			"created_at":     m.CreatedAt.Format(time.RFC3339),
			"exported_at":    time.Now().UTC().Format(time.RFC3339),
			"research_depth": m.Settings.Depth,
		}
	}

	blob, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return os.WriteFile(path, blob, 0o644)
}

func (e *FileExporter) writeCSV(path string, m *mission.Mission) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"name", "category", "description", "depth_score", "attribute_count",
		"website", "pricing", "features", "pros", "cons", "use_cases",
		"target_audience", "competitors", "integrations", "source_count",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, fd := range m.Findings {
		row := []string{
			fd.Name,
			fd.Category,
			fd.Description,
			fmt.Sprintf("%.2f", fd.DepthScore),
			fmt.Sprintf("%d", fd.AttributeCount),
			fd.Website,
			summarizePricing(fd.Pricing),
			strings.Join(fd.Features, "; "),
			strings.Join(fd.Pros, "; "),
			strings.Join(fd.Cons, "; "),
			strings.Join(fd.UseCases, "; "),
			fd.TargetAudience,
			strings.Join(fd.Competitors, "; "),
			strings.Join(fd.Integrations, "; "),
			fmt.Sprintf("%d", fd.SourceCount),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (e *FileExporter) writeMarkdown(path string, m *mission.Mission) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n\n", m.Goal)

	if summary, ok := m.Synthesis["executive_summary"].(string); ok && summary != "" {
		b.WriteString("## Executive Summary\n\n")
		b.WriteString(summary)
		b.WriteString("\n\n")
	}
	if insights, ok := m.Synthesis["key_insights"].([]any); ok && len(insights) > 0 {
		b.WriteString("## Key Insights\n\n")
		for _, ins := range insights {
			fmt.Fprintf(&b, "- %v\n", ins)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Findings\n\n")
	for _, fd := range m.Findings {
		fmt.Fprintf(&b, "### %s\n\n", fd.Name)
		if fd.Category != "" {
			fmt.Fprintf(&b, "*%s*", fd.Category)
			if fd.Website != "" {
				fmt.Fprintf(&b, " — %s", fd.Website)
			}
			b.WriteString("\n\n")
		}
		if fd.Description != "" {
			b.WriteString(fd.Description + "\n\n")
		}
		fmt.Fprintf(&b, "Depth score: %.2f (%d attributes, %d sources)\n\n",
			fd.DepthScore, fd.AttributeCount, fd.SourceCount)
		writeList(&b, "Features", fd.Features)
		writeList(&b, "Pros", fd.Pros)
		writeList(&b, "Cons", fd.Cons)
		writeList(&b, "Use cases", fd.UseCases)
		if len(fd.ComparisonNotes) > 0 {
			b.WriteString("**Comparisons**\n\n")
			for name, note := range fd.ComparisonNotes {
				fmt.Fprintf(&b, "- vs %s: %s\n", name, note)
			}
			b.WriteString("\n")
		}
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s**\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func summarizePricing(pricing map[string]any) string {
	if len(pricing) == 0 {
		return ""
	}
	if s, ok := pricing["starting_price"].(string); ok && s != "" {
		return s
	}
	blob, err := json.Marshal(pricing)
	if err != nil {
		return ""
	}
	return string(blob)
}

func researchStats(findings []*mission.Finding) map[string]any {
	if len(findings) == 0 {
		return map[string]any{"total": 0}
	}
	var depthSum float64
	var attrSum, sourceSum, highQuality, withPricing int
	for _, f := range findings {
		depthSum += f.DepthScore
		attrSum += f.AttributeCount
		sourceSum += f.SourceCount
		if f.DepthScore >= 0.7 {
			highQuality++
		}
		if len(f.Pricing) > 0 {
			withPricing++
		}
	}
	n := float64(len(findings))
	return map[string]any{
		"total_findings":     len(findings),
		"avg_depth_score":    depthSum / n,
		"avg_attributes":     float64(attrSum) / n,
		"avg_sources":        float64(sourceSum) / n,
		"high_quality_count": highQuality,
		"with_pricing":       withPricing,
	}
}
