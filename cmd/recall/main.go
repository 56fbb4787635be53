// Package main provides the recall CLI: a durable, path-addressed memory
// store for AI agents, exposed as six verbs over interchangeable storage
// backends.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/entrhq/recall/pkg/config"
	"github.com/entrhq/recall/pkg/logging"
	"github.com/entrhq/recall/pkg/memory/branch"
	"github.com/entrhq/recall/pkg/memory/mirror"
	"github.com/entrhq/recall/pkg/memory/pins"
	"github.com/entrhq/recall/pkg/memory/store"
	"github.com/entrhq/recall/pkg/memory/types"
)

const version = "0.1.0"

const usageText = `Usage: recall [flags] <command> [args]

Commands:
  view <path> [start end]         Show a directory listing or file content
  create <path> <file_text>       Create or overwrite a memory file
  str_replace <path> <old> <new>  Replace a unique string in a file
  insert <path> <line> <text>     Insert a line at a 0-based index
  delete <path>                   Delete a file or directory tree
  rename <old_path> <new_path>    Move a file or directory tree
  list                            List every entry with metadata

Flags:
`

func main() {
	configPath := flag.String("config", "", "Path to config file (default ~/.recall/config.yaml)")
	backendName := flag.String("backend", "", "Override the configured backend (memory, sqlite, secret, disk)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("recall v%s\n", version)
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("%v", err)
	}
	if *backendName != "" {
		cfg.Backend = *backendName
	}

	log, _ := logging.NewLogger("cli")
	defer log.Close()

	backend, cleanup, err := openBackend(cfg, log)
	if err != nil {
		fatalf("%v", err)
	}
	defer cleanup()

	ctx := context.Background()
	result, mutated, err := run(ctx, backend, flag.Args())
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Println(result)

	if mutated && cfg.Mirror.Path != "" {
		syncer, err := mirror.NewSyncer(backend, &mirror.FileTarget{Path: cfg.Mirror.Path}, mirror.Config{
			Include: cfg.Mirror.Include,
			Exclude: cfg.Mirror.Exclude,
		}, log)
		if err != nil {
			log.Errorf("mirror disabled: %v", err)
			return
		}
		syncer.Sync(ctx)
	}
}

// openBackend builds the configured backend. The returned cleanup closes
// whatever the backend holds open.
func openBackend(cfg *config.Config, log *logging.Logger) (store.Backend, func(), error) {
	tracker := pins.NewMemory()
	opts := []store.Option{store.WithPins(tracker), store.WithLogger(log)}

	switch cfg.Backend {
	case config.BackendMemory:
		eng := store.NewMemory(opts...)
		return eng, func() {}, nil

	case config.BackendSQLite:
		if cfg.BranchAware {
			current := branch.Detect(cfg.Workspace)
			ba := store.NewBranchAware(cfg.StateDir, cfg.Workspace, current, log, opts...)
			watcher, err := branch.NewWatcher(cfg.Workspace, log, ba.OnBranchChange)
			if err != nil {
				log.Warnf("branch watcher unavailable, staying on %q: %v", current, err)
				return ba, func() { _ = ba.Close() }, nil
			}
			return ba, func() {
				_ = watcher.Close()
				_ = ba.Close()
			}, nil
		}
		eng, err := store.NewSQLite(cfg.StateDir, store.IdentityKey(cfg.Workspace, ""), opts...)
		if err != nil {
			return nil, nil, err
		}
		return eng, func() { _ = eng.Close() }, nil

	case config.BackendSecret:
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read key file: %w", err)
		}
		vault, err := store.NewFileVault(cfg.StateDir, key)
		if err != nil {
			return nil, nil, err
		}
		eng := store.NewSecret(vault, opts...)
		return eng, func() {}, nil

	case config.BackendDisk:
		eng, err := store.NewDisk(cfg.StateDir, opts...)
		if err != nil {
			return nil, nil, err
		}
		return eng, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// run executes one verb. The second result reports whether the store may
// have changed, which gates the mirror sync.
func run(ctx context.Context, backend store.Backend, args []string) (string, bool, error) {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "view":
		if len(rest) != 1 && len(rest) != 3 {
			return "", false, fmt.Errorf("usage: view <path> [start end]")
		}
		var rng []int
		if len(rest) == 3 {
			start, err := strconv.Atoi(rest[1])
			if err != nil {
				return "", false, fmt.Errorf("invalid start line %q", rest[1])
			}
			end, err := strconv.Atoi(rest[2])
			if err != nil {
				return "", false, fmt.Errorf("invalid end line %q", rest[2])
			}
			rng = []int{start, end}
		}
		out, err := backend.View(ctx, rest[0], rng)
		return out, false, err

	case "create":
		if len(rest) != 2 {
			return "", false, fmt.Errorf("usage: create <path> <file_text>")
		}
		out, err := backend.Create(ctx, rest[0], rest[1])
		return out, true, err

	case "str_replace":
		if len(rest) != 3 {
			return "", false, fmt.Errorf("usage: str_replace <path> <old_str> <new_str>")
		}
		out, err := backend.Replace(ctx, rest[0], rest[1], rest[2])
		return out, true, err

	case "insert":
		if len(rest) != 3 {
			return "", false, fmt.Errorf("usage: insert <path> <insert_line> <insert_text>")
		}
		line, err := strconv.Atoi(rest[1])
		if err != nil {
			return "", false, fmt.Errorf("invalid insert_line %q", rest[1])
		}
		out, err := backend.Insert(ctx, rest[0], line, rest[2])
		return out, true, err

	case "delete":
		if len(rest) != 1 {
			return "", false, fmt.Errorf("usage: delete <path>")
		}
		out, err := backend.Delete(ctx, rest[0])
		return out, true, err

	case "rename":
		if len(rest) != 2 {
			return "", false, fmt.Errorf("usage: rename <old_path> <new_path>")
		}
		out, err := backend.Rename(ctx, rest[0], rest[1])
		return out, true, err

	case "list":
		if len(rest) != 0 {
			return "", false, fmt.Errorf("usage: list")
		}
		entries, err := backend.ListAll(ctx)
		if err != nil {
			return "", false, err
		}
		var b strings.Builder
		for i, entry := range entries {
			if i > 0 {
				b.WriteByte('\n')
			}
			marker := " "
			if entry.Pinned {
				marker = "*"
			}
			if entry.Kind == types.KindDirectory {
				fmt.Fprintf(&b, "%s %s/", marker, entry.Path)
			} else {
				fmt.Fprintf(&b, "%s %s (%d bytes, modified %s)",
					marker, entry.Path, entry.Size, entry.ModifiedAt.Format("2006-01-02 15:04:05"))
			}
		}
		if b.Len() == 0 {
			return "(empty)", false, nil
		}
		return b.String(), false, nil

	default:
		return "", false, fmt.Errorf("unknown command %q, see recall -h", cmd)
	}
}

func fatalf(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, "recall: "+format+"\n", v...)
	os.Exit(1)
}
