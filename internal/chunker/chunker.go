// Package chunker converts raw PTY events or extracted turns into
// token-bounded, overlapping, quality-scored chunks, per spec §4.3.
// Chunking is deterministic: the same input always yields the same
// chunks, so re-chunking a session reproduces its chunk log (internal/hook
// re-chunks a hook session's full transcript on every Stop event and
// replaces the stored log).
package chunker

import (
	"regexp"
	"strings"

	"github.com/memorybank/membank/internal/sanitize"
	"github.com/memorybank/membank/internal/store"
	"github.com/memorybank/membank/internal/turns"
)

// Options configures chunk sizing.
type Options struct {
	MaxTokens     int
	OverlapTokens int
}

// DefaultOptions returns the spec's defaults: 512 max tokens, 50 overlap.
func DefaultOptions() Options {
	return Options{MaxTokens: 512, OverlapTokens: 50}
}

func (o Options) normalized() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
	if o.OverlapTokens >= o.MaxTokens {
		o.OverlapTokens = o.MaxTokens / 10
	}
	return o
}

type piece struct {
	text string
	ts   int64
	role store.SpeakerRole
}

// ChunkTurns chunks an extracted turn sequence (§4.3, "turn-based
// chunking"), assigning chunk_index starting at startIndex so repeated
// calls for the same session can append.
func ChunkTurns(sessionID string, ts []turns.Turn, opts Options, startIndex int) []store.Chunk {
	opts = opts.normalized()

	var pieces []piece
	for _, t := range ts {
		prefix := "User:"
		role := store.SpeakerUser
		if t.Role == turns.RoleAssistant {
			prefix = "Assistant:"
			role = store.SpeakerAssistant
		}
		formatted := prefix + " " + t.Text

		if EstimateTokens(formatted) <= opts.MaxTokens {
			pieces = append(pieces, piece{text: formatted, ts: t.Timestamp, role: role})
			continue
		}
		for _, part := range splitOversized(formatted, opts.MaxTokens) {
			pieces = append(pieces, piece{text: part, ts: t.Timestamp, role: role})
		}
	}

	return assembleChunks(sessionID, store.ChunkSession, pieces, opts, startIndex)
}

// idleGapSeconds is the minimum silence between consecutive PTY events
// that starts a new episode (§4.3).
const idleGapSeconds = 30

const formFeed = "\x0c"

// groupEpisodes splits a PTY event log into episodes separated by an
// idle gap of idleGapSeconds or more, or by a form-feed byte within an
// event's text (§4.3).
func groupEpisodes(events []store.Event) [][]store.Event {
	var episodes [][]store.Event
	var cur []store.Event
	var lastTS int64

	flush := func() {
		if len(cur) > 0 {
			episodes = append(episodes, cur)
			cur = nil
		}
	}

	for i, e := range events {
		if i > 0 && e.Timestamp-lastTS >= idleGapSeconds {
			flush()
		}
		lastTS = e.Timestamp

		segments := strings.Split(e.Text, formFeed)
		for j, seg := range segments {
			if j > 0 {
				flush()
			}
			if seg == "" {
				continue
			}
			cur = append(cur, store.Event{Timestamp: e.Timestamp, Stream: e.Stream, Text: seg})
		}
	}
	flush()
	return episodes
}

// ChunkEvents chunks a raw PTY event log (§4.3, "PTY-based chunking"):
// events are grouped into episodes, each episode's concatenated text is
// run through the sanitizer and noise filter, and the result is sized
// like ChunkTurns. Each episode is chunked on its own, so no chunk spans
// two episodes, and an episode's first event timestamp anchors the
// start_ts of every chunk its text lands in.
func ChunkEvents(sessionID string, events []store.Event, opts Options, startIndex int) []store.Chunk {
	opts = opts.normalized()

	var chunks []store.Chunk
	idx := startIndex
	for _, ep := range groupEpisodes(events) {
		s := sanitize.New()
		for _, e := range ep {
			s.Write([]byte(e.Text))
		}
		clean := sanitize.FilterNoise(s.String())
		if strings.TrimSpace(clean) == "" {
			continue
		}
		ts := ep[0].Timestamp

		var pieces []piece
		if EstimateTokens(clean) <= opts.MaxTokens {
			pieces = append(pieces, piece{text: clean, ts: ts})
		} else {
			for _, part := range splitOversized(clean, opts.MaxTokens) {
				pieces = append(pieces, piece{text: part, ts: ts})
			}
		}
		epChunks := assembleChunks(sessionID, store.ChunkSession, pieces, opts, idx)
		idx += len(epChunks)
		chunks = append(chunks, epChunks...)
	}

	return chunks
}

// ChunkText chunks a single externally produced artifact document
// (§4.3, §9: plan/todo/task import) the same way a turn's text is
// chunked, tagging every resulting chunk with sourceType and using
// artifactID as the chunk's session_id so pack rendering and dedup can
// address it (§3).
func ChunkText(artifactID string, sourceType store.ChunkSourceType, text string, importedAt int64, opts Options) []store.Chunk {
	opts = opts.normalized()

	var pieces []piece
	if EstimateTokens(text) <= opts.MaxTokens {
		pieces = append(pieces, piece{text: text, ts: importedAt})
	} else {
		for _, part := range splitOversized(text, opts.MaxTokens) {
			pieces = append(pieces, piece{text: part, ts: importedAt})
		}
	}

	return assembleChunks(artifactID, sourceType, pieces, opts, 0)
}

// assembleChunks accumulates pieces into token-bounded chunks, filling
// each chunk as full as the budget allows (splitting a piece across
// the chunk boundary if needed) and carrying an overlap tail into the
// next chunk (§4.3).
func assembleChunks(sessionID string, sourceType store.ChunkSourceType, pieces []piece, opts Options, startIndex int) []store.Chunk {
	var chunks []store.Chunk
	idx := startIndex

	var buf string
	var startTS, endTS int64
	roles := map[store.SpeakerRole]bool{}
	freshBuf := true // true until buf has received its first content (overlap tail or otherwise)

	emit := func() {
		if strings.TrimSpace(buf) == "" {
			buf = ""
			roles = map[store.SpeakerRole]bool{}
			freshBuf = true
			return
		}
		chunks = append(chunks, store.Chunk{
			SessionID:   sessionID,
			ChunkIndex:  idx,
			SourceType:  sourceType,
			Text:        buf,
			TokenCount:  EstimateTokens(buf),
			Quality:     Quality(buf),
			StartTS:     startTS,
			EndTS:       endTS,
			SpeakerRole: dominantRole(roles),
		})
		idx++

		tail := overlapTail(buf, opts.OverlapTokens)
		roles = map[store.SpeakerRole]bool{}
		if tail != "" {
			buf = tail
			startTS = endTS
			freshBuf = false // tail already occupies the buffer
		} else {
			buf = ""
			freshBuf = true
		}
	}

	appendText := func(text string, ts int64, role store.SpeakerRole) {
		if buf == "" {
			buf = text
		} else {
			buf = buf + "\n\n" + text
		}
		if freshBuf {
			startTS = ts
			freshBuf = false
		}
		endTS = ts
		roles[role] = true
	}

	for _, p := range pieces {
		remaining := p.text
		for remaining != "" {
			sep := 0
			if buf != "" {
				sep = 1
			}
			avail := opts.MaxTokens - EstimateTokens(buf) - sep
			if avail <= 0 {
				emit()
				continue
			}
			if EstimateTokens(remaining) <= avail {
				appendText(remaining, p.ts, p.role)
				remaining = ""
				continue
			}
			head, tail := splitAtBudget(remaining, avail)
			if head == "" {
				// Current buffer can't absorb even a minimal fragment;
				// force a flush and retry against a clean budget.
				emit()
				continue
			}
			appendText(head, p.ts, p.role)
			remaining = tail
			emit()
		}
	}
	if strings.TrimSpace(buf) != "" {
		emit()
	}

	return chunks
}

func dominantRole(roles map[store.SpeakerRole]bool) store.SpeakerRole {
	if len(roles) == 0 {
		return ""
	}
	if len(roles) > 1 {
		return store.SpeakerMixed
	}
	for r := range roles {
		return r
	}
	return ""
}

var paragraphSplit = regexp.MustCompile(`\n\n+`)
var sentenceSplit = regexp.MustCompile(`(?s)(?:[.!?])\s+`)

// splitOversized splits text larger than maxTokens on paragraph, then
// sentence, then hard character boundaries (§4.3).
func splitOversized(text string, maxTokens int) []string {
	if EstimateTokens(text) <= maxTokens {
		return []string{text}
	}

	paras := paragraphSplit.Split(text, -1)
	if len(paras) > 1 {
		var out []string
		for _, p := range paras {
			out = append(out, splitOversized(p, maxTokens)...)
		}
		return out
	}

	sentences := sentenceSplit.Split(text, -1)
	if len(sentences) > 1 {
		var out []string
		for _, sent := range sentences {
			out = append(out, splitOversized(sent, maxTokens)...)
		}
		return out
	}

	// Hard character boundary: maxTokens*4 runes per piece.
	maxChars := maxTokens * 4
	if maxChars < 1 {
		maxChars = 1
	}
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += maxChars {
		end := i + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// splitAtBudget carves the leading portion of text that fits within
// budgetTokens off as head, returning the remainder as tail. It prefers
// a paragraph boundary within budget, then a sentence boundary, then a
// hard rune-count cut (§4.3, §8 scenario 2: a turn split mid-piece must
// still carve its prefix at the nearest reasonable boundary).
func splitAtBudget(text string, budgetTokens int) (head, tail string) {
	if budgetTokens <= 0 {
		return "", text
	}
	maxChars := budgetTokens * 4
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text, ""
	}
	window := string(runes[:maxChars])

	if locs := paragraphSplit.FindAllStringIndex(window, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		return window[:last[0]], text[last[1]:]
	}
	if locs := sentenceSplit.FindAllStringIndex(window, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		return window[:last[1]], text[last[1]:]
	}
	return window, string(runes[maxChars:])
}

// overlapTail extracts the trailing ~overlapTokens tokens of text,
// preferring to break at a paragraph boundary within the tail, else a
// sentence boundary, else the exact character count (§4.3).
func overlapTail(text string, overlapTokens int) string {
	if overlapTokens <= 0 {
		return ""
	}
	runes := []rune(text)
	approxChars := overlapTokens * 4
	if approxChars >= len(runes) {
		return text
	}
	tailStart := len(runes) - approxChars
	tail := string(runes[tailStart:])

	if loc := paragraphSplit.FindStringIndex(tail); loc != nil {
		return tail[loc[1]:]
	}
	if loc := sentenceSplit.FindStringIndex(tail); loc != nil {
		return tail[loc[1]:]
	}
	return tail
}
