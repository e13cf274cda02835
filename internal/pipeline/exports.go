package pipeline

import (
	"context"

	"go.uber.org/zap"

	"chronicle/internal/mission"
)

// runExports renders the mission into each configured format. Export
// failures are recorded as failed actions and emitted as error events; they
// never fail the mission.
func (r *Runner) runExports(ctx context.Context, m *mission.Mission) {
	formats := m.ActionsConfig.ExportFormats
	if len(formats) == 0 {
		formats = []string{"json", "md"}
	}

	for _, format := range formats {
		action := r.exporter.Export(ctx, m, format, true, m.ActionsConfig.FilenamePrefix)
		m.AddAction(action)

		if action.Status == "success" {
			r.bus.EmitAction(m.ID, map[string]any{
				"type":         action.Type,
				"format":       action.Format,
				"file_path":    action.FilePath,
				"record_count": action.RecordCount,
			})
		} else {
			r.log.Warn("export failed",
				zap.String("mission_id", m.ID),
				zap.String("format", format),
				zap.String("error", action.Error))
			r.bus.EmitError(m.ID, "Export failed ("+format+"): "+action.Error)
		}
	}
}
