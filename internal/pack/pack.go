// Package pack assembles a token-budgeted context pack from a project's
// state, artifacts, and recent session activity, per spec §4.8.
package pack

import (
	"github.com/memorybank/membank/internal/episode"
	"github.com/memorybank/membank/internal/store"
)

// Mode selects the section weight table used by Assemble.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeDebug   Mode = "debug"
	ModeBuild   Mode = "build"
	ModeExplore Mode = "explore"
)

// Format selects the output serialization.
type Format string

const (
	FormatXML      Format = "xml"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
)

// Options configures one Assemble call.
type Options struct {
	Budget   int
	Mode     Mode
	Format   Format
	Episode  *episode.Label // optional filter on recent_context's source sessions
}

// Item is one citable piece of a section: an artifact excerpt or a
// retrieved chunk, carrying enough identity for a downstream consumer
// to cite it (§4.8, "every section must include... source identifiers").
type Item struct {
	ID         string                `json:"id" xml:"id,attr"`
	SourceType store.ChunkSourceType `json:"source_type" xml:"source-type,attr"`
	SessionID  string                `json:"session_id,omitempty" xml:"session,attr,omitempty"`
	Text       string                `json:"text" xml:",chardata"`
	Tokens     int                   `json:"tokens" xml:"tokens,attr"`
}

// Document is the assembled, section-ordered pack, independent of the
// serialization format it is ultimately rendered into.
type Document struct {
	ProjectStateSummary string
	Decisions           []string
	Constraints         []string
	ActiveTasks         []Item
	Plans               []Item
	RecentContext       []Item
	Instructions        string
}
