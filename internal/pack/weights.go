package pack

import "github.com/memorybank/membank/internal/episode"

// weights holds the per-section fractions of the total budget B (§4.8
// table). Constraints has no fraction of its own — it is extracted
// directly from project state alongside decisions and is never
// truncated to a token count.
type weights struct {
	ProjectState  float64
	Decisions     float64
	ActiveTasks   float64
	Plans         float64
	RecentContext float64
}

var weightTable = map[Mode]weights{
	ModeDebug:   {ProjectState: 0.10, Decisions: 0.05, ActiveTasks: 0.05, Plans: 0.05, RecentContext: 0.75},
	ModeBuild:   {ProjectState: 0.15, Decisions: 0.20, ActiveTasks: 0.20, Plans: 0.20, RecentContext: 0.25},
	ModeExplore: {ProjectState: 0.25, Decisions: 0.15, ActiveTasks: 0.05, Plans: 0.15, RecentContext: 0.40},
}

var autoWeights = weights{ProjectState: 0.15, Decisions: 0.15, ActiveTasks: 0.15, Plans: 0.15, RecentContext: 0.40}

// episodeToMode implements the auto-mode inference table (§4.8):
// debug -> debug; build/refactor/test/config/deploy -> build;
// explore/docs/review -> explore.
var episodeToMode = map[episode.Label]Mode{
	episode.Debug:    ModeDebug,
	episode.Build:    ModeBuild,
	episode.Refactor: ModeBuild,
	episode.Test:     ModeBuild,
	episode.Config:   ModeBuild,
	episode.Deploy:   ModeBuild,
	episode.Explore:  ModeExplore,
	episode.Docs:     ModeExplore,
	episode.Review:   ModeExplore,
}

// resolveMode turns opts.Mode=="auto" into a concrete mode using the
// latest session's classified episode, falling back to the blended
// auto weights when no episode could be determined.
func resolveMode(mode Mode, latest episode.Label, determined bool) Mode {
	if mode != ModeAuto {
		return mode
	}
	if !determined {
		return ModeAuto
	}
	if m, ok := episodeToMode[latest]; ok {
		return m
	}
	return ModeAuto
}

// weightsFor resolves the section fractions for mode, preferring the
// operator-configured pack_modes section of config.json (§6) over the
// built-in table. A fraction missing from config falls back to the
// hardcoded value for that mode/section so a partial override (e.g.
// just overriding recent_context) doesn't zero out the others.
func weightsFor(mode Mode, configured map[string]map[string]float64) weights {
	w, ok := weightTable[mode]
	if !ok {
		w = autoWeights
	}
	override, ok := configured[string(mode)]
	if !ok {
		return w
	}
	if v, ok := override["project_state"]; ok {
		w.ProjectState = v
	}
	if v, ok := override["decisions"]; ok {
		w.Decisions = v
	}
	if v, ok := override["active_tasks"]; ok {
		w.ActiveTasks = v
	}
	if v, ok := override["plans"]; ok {
		w.Plans = v
	}
	if v, ok := override["recent_context"]; ok {
		w.RecentContext = v
	}
	return w
}
