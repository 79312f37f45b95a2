package sanitize

import (
	"regexp"
	"strings"
)

// Glyphs is the versioned, data-not-code spinner glyph set noted in
// spec §9 ("the noise-filter pattern list...may silently evolve; treat
// it as data, not code, and version it").
var Glyphs = struct {
	Version int
	Spinner []rune
}{
	Version: 1,
	Spinner: []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏"),
}

// chromeLines is the short list of anchored patterns matching a
// popular agent's TUI banner and hint bar, per §4.1.
var chromeLines = []*regexp.Regexp{
	regexp.MustCompile(`^\s*╭─+╮\s*$`),
	regexp.MustCompile(`^\s*╰─+╯\s*$`),
	regexp.MustCompile(`^\s*\? for shortcuts\s*$`),
	regexp.MustCompile(`^\s*Press (Ctrl-C|Esc) to .*$`),
	regexp.MustCompile(`^\s*>\s*Try ".*"\s*$`),
}

var multiBlank = regexp.MustCompile(`\n{4,}`)
var multiSpace = regexp.MustCompile(`  +`)

func isBoxDrawingOrBraille(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if (r >= 0x2500 && r <= 0x257F) || (r >= 0x2800 && r <= 0x28FF) {
			continue
		}
		if isSpinnerGlyph(r) {
			continue
		}
		return false
	}
	return true
}

func isSpinnerGlyph(r rune) bool {
	for _, g := range Glyphs.Spinner {
		if r == g {
			return true
		}
	}
	return false
}

func isChromeLine(line string) bool {
	for _, re := range chromeLines {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// FilterNoise removes TUI chrome from a cleaned text block, per §4.1:
// box-drawing/braille/spinner-only lines, known chrome lines, runs of
// ≥3 blank lines collapsed to 2, and runs of ≥2 spaces collapsed to 1
// outside fenced code blocks.
func FilterNoise(text string) string {
	lines := strings.Split(text, "\n")
	inFence := false
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			kept = append(kept, line)
			continue
		}
		if !inFence {
			if isBoxDrawingOrBraille(line) || isChromeLine(line) {
				continue
			}
			line = multiSpace.ReplaceAllString(line, " ")
		}
		kept = append(kept, line)
	}

	joined := strings.Join(kept, "\n")
	return multiBlank.ReplaceAllString(joined, "\n\n\n")
}
