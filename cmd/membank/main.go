// Package main provides the CLI entry point for memorybank, a
// local-first tool that captures AI coding-assistant transcripts,
// indexes them for semantic retrieval, and assembles token-budgeted
// context packs.
//
// Usage:
//
//	membank init                        - Initialize a project store in the current directory
//	membank import <path>                - Import a transcript file as a session
//	membank import-artifact <kind> <path> - Import a plan/todo/task document
//	membank record <command> [args...]   - Run a command, capturing PTY events as a session
//	membank sessions                     - List sessions in the current project
//	membank index                        - Build/refresh the vector index
//	membank search "<query>"             - Search the current project's index
//	membank search-all "<query>"         - Search every registered project
//	membank pack                         - Assemble a context pack
//	membank projects                     - List/add/remove registered projects
//	membank watch                        - Watch the store for staleness (blocking)
//	membank hook-stop                    - Stop hook handler (JSON on stdin)
//	membank version                      - Show version
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/memorybank/membank/internal/chunker"
	"github.com/memorybank/membank/internal/config"
	"github.com/memorybank/membank/internal/errs"
	"github.com/memorybank/membank/internal/hook"
	"github.com/memorybank/membank/internal/logger"
	"github.com/memorybank/membank/internal/oracle"
	"github.com/memorybank/membank/internal/pack"
	"github.com/memorybank/membank/internal/registry"
	"github.com/memorybank/membank/internal/retriever"
	"github.com/memorybank/membank/internal/store"
	"github.com/memorybank/membank/internal/turns"
	"github.com/memorybank/membank/internal/vectorindex"
	"github.com/memorybank/membank/internal/watch"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	// hook-stop must exit 0 regardless of internal outcome (§6, "Hook
	// contract") — any failure is logged, never surfaced via exit code.
	if cmd == "hook-stop" {
		cmdHookStop(args)
		return
	}

	var err error
	switch cmd {
	case "init":
		err = cmdInit(args)
	case "import":
		err = cmdImport(args)
	case "import-artifact":
		err = cmdImportArtifact(args)
	case "record":
		err = cmdRecord(args)
	case "sessions":
		err = cmdSessions(args)
	case "index":
		err = cmdIndex(args)
	case "search":
		err = cmdSearch(args)
	case "search-all":
		err = cmdSearchAll(args)
	case "pack":
		err = cmdPack(args)
	case "projects":
		err = cmdProjects(args)
	case "watch":
		err = cmdWatch(args)
	case "version", "-v", "--version":
		fmt.Println("membank " + version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`membank - local-first memory for AI coding assistants

Commands:
  init                    Initialize a project store in the current directory
  import <path>           Import a transcript file as a session
    --command=<cmd>       Record the agent command line that produced it
  import-artifact <kind> <path>
                          Import a plan, todo, or task document (kind is one of those three)
    --agent-session=<id>  Originating agent session id, for dedup
  record <command> [args...]
                          Run a command, capturing its output as a PTY-sourced session
  sessions                List sessions in the current project
  index                   Build/refresh the vector index from stored chunks
  search "<query>"        Search the current project's index
    --limit=N             Maximum results (default 10)
  search-all "<query>"    Search every registered project
    --limit=N             Maximum results across all projects (default 10)
  pack                    Assemble a context pack for the current project
    --mode=<mode>         auto, debug, build, or explore (default auto)
    --format=<fmt>        xml, json, or md (default xml)
    --budget=N            Token budget (default 8000)
  projects list           List registered projects
  projects add            Register the current directory
  projects remove         Unregister the current directory
  watch                   Watch the store and log staleness (blocking)
  hook-stop               Stop hook handler (JSON input on stdin)
  version                 Show version
  help                    Show this help`)
}

func cwdRoot() (string, error) {
	return os.Getwd()
}

func openStore() (*store.Store, error) {
	root, err := cwdRoot()
	if err != nil {
		return nil, err
	}
	return store.Open(root)
}

// loadOracle selects an Oracle backend from the operator config (§9,
// "Oracle as a capability"): Ollama by default, Gemini when configured,
// a deterministic Fake only when the backend is set to "fake" (in the
// config file or via MEMORYBANK_ORACLE, which overrides the config).
func loadOracle(ctx context.Context) (oracle.Oracle, error) {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return nil, err
	}

	backend := cfg.Oracle.Backend
	if override := os.Getenv("MEMORYBANK_ORACLE"); override != "" {
		backend = override
	}

	timeouts := oracle.Timeouts{
		Connect: time.Duration(cfg.Oracle.ConnectSecs) * time.Second,
		Read:    time.Duration(cfg.Oracle.ReadSecs) * time.Second,
	}

	switch backend {
	case "gemini":
		return oracle.NewGemini(ctx, cfg.Oracle.APIKey, cfg.Oracle.EmbedModel, cfg.Oracle.ChatModel, timeouts)
	case "fake":
		return oracle.NewFake(), nil
	default:
		return oracle.NewOllama(cfg.Oracle.BaseURL, cfg.Oracle.EmbedModel, cfg.Oracle.ChatModel, timeouts), nil
	}
}

func cmdInit(args []string) error {
	root, err := cwdRoot()
	if err != nil {
		return err
	}
	st, err := store.Open(root)
	if err != nil {
		return err
	}

	reg, err := openRegistry()
	if err != nil {
		return err
	}
	if err := reg.Upsert(registry.Entry{Root: root}); err != nil {
		return err
	}

	fmt.Printf("initialized memory bank store at %s\n", st.Root())
	return nil
}

func cmdImport(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: membank import <path>")
	}
	path := args[0]
	command := flagValue(args[1:], "command", "")

	st, err := openStore()
	if err != nil {
		return err
	}

	extracted, err := turns.ExtractFile(path, true)
	if err != nil {
		return err
	}

	meta, err := st.CreateSession(store.SourceImport, command, time.Now().Unix(), nil)
	if err != nil {
		return err
	}

	cfg, err := st.Config()
	if err != nil {
		return err
	}
	opts := chunker.Options{MaxTokens: cfg.Chunking.MaxTokens, OverlapTokens: cfg.Chunking.OverlapTokens}
	chunks := chunker.ChunkTurns(meta.ID, extracted, opts, 0)
	if err := st.AppendChunks(meta.ID, chunks); err != nil {
		return err
	}
	if err := st.FinalizeSession(meta.ID, 0, time.Now().Unix()); err != nil {
		return err
	}

	fmt.Printf("imported %d chunks into session %s\n", len(chunks), meta.ID)
	return nil
}

// cmdImportArtifact drives the §9 artifact-import pipeline end to end:
// chunk the document, append it to the shared artifact chunk log,
// persist a plan's content for pack rendering, and record the dedup
// key so a re-import is a no-op.
func cmdImportArtifact(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: membank import-artifact <plan|todo|task> <path>")
	}
	kind, path := args[0], args[1]
	agentSessionID := flagValue(args[2:], "agent-session", "")

	var sourceType store.ChunkSourceType
	switch kind {
	case "plan":
		sourceType = store.ChunkPlan
	case "todo":
		sourceType = store.ChunkTodo
	case "task":
		sourceType = store.ChunkTask
	default:
		return fmt.Errorf("unknown artifact kind %q (want plan, todo, or task)", kind)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	artifactID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	artifact := store.Artifact{SourceType: sourceType, AgentSessionID: agentSessionID, ArtifactID: artifactID}
	key := artifact.DedupKey()

	importState, err := st.LoadImportState()
	if err != nil {
		return err
	}
	if importState.HasArtifact(key) {
		fmt.Printf("already imported: %s\n", key)
		return nil
	}

	cfg, err := st.Config()
	if err != nil {
		return err
	}
	opts := chunker.Options{MaxTokens: cfg.Chunking.MaxTokens, OverlapTokens: cfg.Chunking.OverlapTokens}
	importedAt := time.Now().Unix()
	chunks := chunker.ChunkText(artifactID, sourceType, string(content), importedAt, opts)
	if err := st.AppendArtifactChunks(chunks); err != nil {
		return err
	}

	if sourceType == store.ChunkPlan {
		meta := store.ArtifactMeta{AgentSessionID: agentSessionID, ArtifactID: artifactID, ImportedAt: importedAt}
		if err := st.SavePlan(artifactID, content, meta); err != nil {
			return err
		}
	}

	importState.Artifacts[key] = importedAt
	if err := st.SaveImportState(importState); err != nil {
		return err
	}

	fmt.Printf("imported %s %q as %d chunks (artifact_id=%s)\n", kind, path, len(chunks), artifactID)
	return nil
}

// cmdRecord runs command as a child process, teeing its stdout/stderr
// to the terminal and into the session's PTY event log line-by-line,
// then chunks the captured events with ChunkEvents once the process
// exits (§4.3, "PTY event log").
func cmdRecord(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: membank record <command> [args...]")
	}
	ctx := context.Background()
	st, err := openStore()
	if err != nil {
		return err
	}

	meta, err := st.CreateSession(store.SourcePTY, strings.Join(args, " "), time.Now().Unix(), nil)
	if err != nil {
		return err
	}

	child := exec.CommandContext(ctx, args[0], args[1:]...)
	child.Stdin = os.Stdin

	stdout, err := child.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := child.StderrPipe()
	if err != nil {
		return err
	}
	if err := child.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go teeEvents(&wg, st, meta.ID, stdout, os.Stdout)
	go teeEvents(&wg, st, meta.ID, stderr, os.Stderr)
	wg.Wait()

	exitCode := 0
	if waitErr := child.Wait(); waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return waitErr
		}
		exitCode = exitErr.ExitCode()
	}

	events, err := st.ReadEvents(meta.ID)
	if err != nil {
		return err
	}
	cfg, err := st.Config()
	if err != nil {
		return err
	}
	opts := chunker.Options{MaxTokens: cfg.Chunking.MaxTokens, OverlapTokens: cfg.Chunking.OverlapTokens}
	chunks := chunker.ChunkEvents(meta.ID, events, opts, 0)
	if err := st.AppendChunks(meta.ID, chunks); err != nil {
		return err
	}
	if err := st.FinalizeSession(meta.ID, exitCode, time.Now().Unix()); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\nrecorded session %s (%d chunks, exit %d)\n", meta.ID, len(chunks), exitCode)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// teeEvents copies r to w line-by-line, appending each line to the
// session's event log as it arrives. Capture is best-effort: a failed
// AppendEvent is logged and skipped rather than aborting the child.
func teeEvents(wg *sync.WaitGroup, st *store.Store, sessionID string, r io.Reader, w io.Writer) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(w, line)
		ev := store.Event{Timestamp: time.Now().Unix(), Stream: store.StreamOut, Text: line + "\n"}
		if err := st.AppendEvent(sessionID, ev); err != nil {
			logger.GetLogger().Warn().Err(err).Str("session_id", sessionID).Msg("append pty event failed")
		}
	}
}

func cmdSessions(args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	ids, err := st.ListSessions()
	if err != nil {
		return err
	}
	for _, id := range ids {
		meta, err := st.ReadSessionMeta(id)
		if err != nil {
			continue
		}
		fmt.Printf("%s\tsource=%s\tstarted=%d\n", meta.ID, meta.Source, meta.StartedAt)
	}
	return nil
}

func cmdIndex(args []string) error {
	ctx := context.Background()
	st, err := openStore()
	if err != nil {
		return err
	}
	chunks, err := st.AllChunks()
	if err != nil {
		return err
	}
	o, err := loadOracle(ctx)
	if err != nil {
		return err
	}
	idx, err := vectorindex.Open(st.Layout().IndexDir())
	if err != nil {
		return err
	}
	inserted, err := idx.Build(ctx, chunks, o)
	if errors.Is(err, errs.ErrIndexDimMismatch) || errors.Is(err, errs.ErrStorageCorrupt) {
		// A dimension change or a corrupt metadata line forces a full rebuild.
		if _, err = vectorindex.Rebuild(ctx, st.Layout().IndexDir(), chunks, o); err == nil {
			inserted = len(chunks)
		}
	}
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d new chunks (%d total)\n", inserted, len(chunks))
	return nil
}

func cmdSearch(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: membank search \"<query>\"")
	}
	query := args[0]
	limit := flagInt(args[1:], "limit", 10)

	ctx := context.Background()
	st, err := openStore()
	if err != nil {
		return err
	}
	o, err := loadOracle(ctx)
	if err != nil {
		return err
	}
	idx, err := vectorindex.Open(st.Layout().IndexDir())
	if err != nil {
		return err
	}

	cfg, err := st.Config()
	if err != nil {
		return err
	}
	opts := retriever.DefaultOptions()
	opts.DecayEnabled = cfg.Decay.Enabled
	opts.HalfLifeDays = cfg.Decay.HalfLifeDays
	opts.TopK = limit
	opts.Now = time.Now().Unix()
	results, err := retriever.Retrieve(ctx, idx, o, query, retriever.Filters{}, opts)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%.4f\t%s\t%s\n", r.Score, r.Key.SessionID, truncateOneLine(r.Text, 120))
	}
	return nil
}

func cmdSearchAll(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: membank search-all \"<query>\"")
	}
	query := args[0]
	limit := flagInt(args[1:], "limit", 10)

	ctx := context.Background()
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	entries, err := reg.List()
	if err != nil {
		return err
	}
	o, err := loadOracle(ctx)
	if err != nil {
		return err
	}

	results, warnings, err := registry.SearchAll(ctx, entries, o, query, limit)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %v\n", w)
	}
	for _, r := range results {
		fmt.Printf("%.4f\t%s\t%s\t%s\n", r.Score, r.Root, r.Key.SessionID, truncateOneLine(r.Text, 120))
	}
	return nil
}

func cmdPack(args []string) error {
	ctx := context.Background()
	st, err := openStore()
	if err != nil {
		return err
	}
	o, err := loadOracle(ctx)
	if err != nil {
		return err
	}

	mode := pack.Mode(flagValue(args, "mode", string(pack.ModeAuto)))
	format := pack.Format(flagValue(args, "format", string(pack.FormatXML)))
	budget := flagInt(args, "budget", 8000)

	doc, err := pack.Assemble(ctx, st, o, pack.Options{Budget: budget, Mode: mode, Format: format})
	if err != nil {
		return err
	}
	out, err := pack.Render(doc, format)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdProjects(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: membank projects <list|add|remove>")
	}
	reg, err := openRegistry()
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		entries, err := reg.List()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s\tsessions=%d\tlast_import=%d\n", e.Root, e.SessionCount, e.LastImportAt)
		}
		return nil
	case "add":
		root, err := cwdRoot()
		if err != nil {
			return err
		}
		return reg.Upsert(registry.Entry{Root: root, LastImportAt: time.Now().Unix()})
	case "remove":
		root, err := cwdRoot()
		if err != nil {
			return err
		}
		return reg.Remove(root)
	default:
		return fmt.Errorf("unknown projects subcommand: %s", args[0])
	}
}

func cmdWatch(args []string) error {
	root, err := cwdRoot()
	if err != nil {
		return err
	}
	w, err := watch.New(root, 2*time.Second, func() {
		logger.GetLogger().Info().Str("root", root).Msg("store is stale")
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Println("watching " + root + " for changes; press Ctrl+C to stop")
	select {}
}

func cmdHookStop(args []string) {
	in, err := hook.ParseInput(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hook-stop: decode input:", err)
		return
	}

	root := in.Cwd
	if root == "" {
		root, err = cwdRoot()
		if err != nil {
			fmt.Fprintln(os.Stderr, "hook-stop:", err)
			return
		}
	}

	st, err := store.Open(root)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hook-stop: open store:", err)
		return
	}

	cfg, loadErr := config.Load(config.DefaultConfigPath())
	if loadErr == nil {
		logger.Setup(cfg, st.Root())
	}

	if err := hook.Handle(context.Background(), st, in, time.Now().Unix()); err != nil {
		logger.GetLogger().Warn().Err(err).Str("agent_session_id", in.SessionID).Msg("hook-stop failed")
	}
}

func openRegistry() (*registry.Registry, error) {
	path, err := registry.DefaultPath()
	if err != nil {
		return nil, err
	}
	return registry.Open(path)
}

func flagValue(args []string, name, def string) string {
	prefix := "--" + name + "="
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimPrefix(a, prefix)
		}
	}
	return def
}

func flagInt(args []string, name string, def int) int {
	raw := flagValue(args, name, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func truncateOneLine(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
