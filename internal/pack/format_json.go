package pack

import "encoding/json"

// jsonDocument mirrors xmlDocument's element order (§4.8 step 5: "JSON
// mirrors it").
type jsonDocument struct {
	ProjectState struct {
		Summary string `json:"summary"`
	} `json:"project_state"`
	Decisions     []string `json:"decisions,omitempty"`
	Constraints   []string `json:"constraints,omitempty"`
	ActiveTasks   []Item   `json:"active_tasks,omitempty"`
	Plans         []Item   `json:"plans,omitempty"`
	RecentContext []Item   `json:"recent_context,omitempty"`
	Instructions  string   `json:"instructions"`
}

// FormatJSON renders doc as indented JSON.
func FormatJSON(doc Document) ([]byte, error) {
	var j jsonDocument
	j.ProjectState.Summary = doc.ProjectStateSummary
	j.Decisions = doc.Decisions
	j.Constraints = doc.Constraints
	j.ActiveTasks = doc.ActiveTasks
	j.Plans = doc.Plans
	j.RecentContext = doc.RecentContext
	j.Instructions = doc.Instructions
	return json.MarshalIndent(j, "", "  ")
}
