// Package episode classifies a session's activity into one of nine
// labels and detects error state, per spec §4.6.
package episode

import (
	"regexp"
	"strings"
)

// Label is one of the closed set of episode classifications.
type Label string

const (
	Build    Label = "build"
	Test     Label = "test"
	Deploy   Label = "deploy"
	Debug    Label = "debug"
	Refactor Label = "refactor"
	Explore  Label = "explore"
	Config   Label = "config"
	Docs     Label = "docs"
	Review   Label = "review"
)

// commandRule maps a command-token pattern to a label; first match
// wins, evaluated in order.
type commandRule struct {
	pattern *regexp.Regexp
	label   Label
}

var commandRules = []commandRule{
	{regexp.MustCompile(`\b(pytest|jest|go test|rspec|mocha)\b`), Test},
	{regexp.MustCompile(`\b(cargo build|make|npm run build|go build|yarn build)\b`), Build},
	{regexp.MustCompile(`\b(docker|kubectl|terraform|helm)\b`), Deploy},
	{regexp.MustCompile(`\b(git log|git diff|git blame|git show)\b`), Review},
}

// ClassifyCommand classifies a PTY session with a non-agent command
// via the fixed command-heuristic rule table.
func ClassifyCommand(command string) Label {
	for _, r := range commandRules {
		if r.pattern.MatchString(command) {
			return r.label
		}
	}
	return Explore
}

// lexicon is the content keyword heuristic for agent/hook/import
// sessions: a small set of keywords per category. Keywords are not
// weighted; every occurrence of any keyword adds 1 to its category.
var lexicon = map[Label][]string{
	Build:    {"compile", "build failed", "build succeeded", "go build", "webpack", "linker"},
	Test:     {"test failed", "test passed", "assertion", "expect(", "pytest", "coverage"},
	Deploy:   {"deploy", "kubernetes", "docker push", "terraform apply", "rollout"},
	Debug:    {"traceback", "panic:", "stack trace", "debugger", "breakpoint", "segfault"},
	Refactor: {"refactor", "rename", "extract method", "cleanup", "simplify"},
	Config:   {"config.yaml", "environment variable", ".env", "configuration", "settings"},
	Docs:     {"readme", "documentation", "docstring", "changelog"},
	Review:   {"pull request", "code review", "lgtm", "diff review"},
}

const minContentScore = 2

// ClassifyContent classifies an agent/hook/import session by counting
// keyword hits per category across its concatenated chunk text and
// picking the highest-scoring category above a minimum floor.
func ClassifyContent(text string) Label {
	lower := strings.ToLower(text)

	best := Explore
	bestScore := 0
	for _, label := range []Label{Build, Test, Deploy, Debug, Refactor, Config, Docs, Review} {
		score := 0
		for _, kw := range lexicon[label] {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			bestScore = score
			best = label
		}
	}
	if bestScore < minContentScore {
		return Explore
	}
	return best
}

var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bTraceback\b`),
	regexp.MustCompile(`\bpanic:`),
	regexp.MustCompile(`\bFAIL\b`),
	regexp.MustCompile(`\berror:`),
}

// IsErrorState reports whether a session is in error state: a
// non-zero exit code, or chunk text matching any of the fixed
// whole-word error markers.
func IsErrorState(exitCode int, text string) bool {
	if exitCode != 0 {
		return true
	}
	for _, re := range errorPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
