package events

// Convenience emitters for each event type. All route through Publish.

// EmitStatus publishes a state-change event.
func (b *Bus) EmitStatus(missionID, state, activity string) {
	b.Publish(missionID, Event{
		Type: TypeStatus,
		Data: map[string]any{"state": state, "activity": activity},
	})
}

// EmitProgress publishes a progress event with a derived percentage.
func (b *Bus) EmitProgress(missionID string, completed, total int, phase string) {
	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}
	b.Publish(missionID, Event{
		Type: TypeProgress,
		Data: map[string]any{
			"completed":  completed,
			"total":      total,
			"phase":      phase,
			"percentage": pct,
		},
	})
}

// EmitFinding publishes a new-finding event.
func (b *Bus) EmitFinding(missionID string, finding map[string]any) {
	b.Publish(missionID, Event{Type: TypeFinding, Data: finding})
}

// EmitAction publishes an action-completed event.
func (b *Bus) EmitAction(missionID string, action map[string]any) {
	b.Publish(missionID, Event{Type: TypeAction, Data: action})
}

// EmitError publishes an error event carrying a summary string.
func (b *Bus) EmitError(missionID, errMsg string) {
	b.Publish(missionID, Event{
		Type: TypeError,
		Data: map[string]any{"error": errMsg},
	})
}

// EmitComplete publishes the terminal completion event.
func (b *Bus) EmitComplete(missionID string, summary map[string]any) {
	b.Publish(missionID, Event{Type: TypeComplete, Data: summary})
}
