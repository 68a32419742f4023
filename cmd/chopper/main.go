// Command chopper is the symlink-invoked command multiplexer: invoked
// under an alias name, it loads that alias's manifest, applies the
// reconcile hook's patch, optionally asks the privileged broker to
// provision a journal namespace, and executes the resulting child so
// that the child's exit status becomes chopper's.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/chopper-cli/chopper/internal/brokerclient"
	"github.com/chopper-cli/chopper/internal/cache"
	"github.com/chopper-cli/chopper/internal/executor"
	"github.com/chopper-cli/chopper/internal/fingerprint"
	"github.com/chopper-cli/chopper/internal/manifest"
	"github.com/chopper-cli/chopper/internal/resolver"
	"github.com/chopper-cli/chopper/internal/scripthost"
	"github.com/chopper-cli/chopper/internal/tracing"
)

// logFileEnv points per-invocation JSON logs at a file; unset means
// logging is discarded. chopper is a short-lived wrapper, so there is
// no rotation here (the broker daemon is the long-lived half).
const logFileEnv = "CHOPPER_LOG_FILE"

func main() {
	initSlog()

	args := os.Args
	alias := filepath.Base(args[0])
	cliArgs := args[1:]

	// Running the real binary directly: the first argument names the
	// alias, everything after passes through.
	if alias == "chopper" {
		if len(cliArgs) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: symlink to chopper with an alias name, or: chopper <alias> [args...]")
			os.Exit(1)
		}
		alias, cliArgs = cliArgs[0], cliArgs[1:]
	}

	if completed := maybeComplete(alias); completed {
		return
	}

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, "chopper")
	if err != nil {
		slog.ErrorContext(ctx, "main tracing init", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	// A direct-mode exec replaces the process inside run and never
	// reaches the flush; that loss is inherent to exec.
	err = run(ctx, alias, cliArgs)
	shutdownTracing(ctx)
	if err == nil {
		return
	}
	var exit *executor.ChildExit
	if errors.As(err, &exit) {
		os.Exit(exit.Code)
	}
	reportFatal(ctx, alias, err)
	os.Exit(1)
}

func run(ctx context.Context, alias string, cliArgs []string) error {
	m, err := loadManifest(ctx, alias)
	if err != nil {
		return err
	}

	var patch *manifest.Patch
	if m.Reconcile != nil {
		host := scripthost.NewHost(scripthost.Reconcile)
		patch, err = scripthost.RunReconcile(ctx, host, m, cliArgs)
		if err != nil {
			return fmt.Errorf("reconcile hook: %w", err)
		}
	}

	inv := manifest.BuildInvocation(m, cliArgs, patch)

	if inv.Journal != nil && inv.Journal.Ensure {
		client := brokerclient.Client{}
		if err := client.EnsureNamespace(ctx, inv.Journal.Namespace, inv.Journal.Policy); err != nil {
			return err
		}
	}

	return executor.NewExecutor().Run(ctx, inv)
}

// loadManifest resolves the alias to a manifest: cache hit by source
// fingerprint, else parse and re-cache. An alias with no configuration
// degrades to a bare executable of the same name.
func loadManifest(ctx context.Context, alias string) (*manifest.Manifest, error) {
	configRoot, err := resolver.ConfigRoot()
	if err != nil {
		return nil, err
	}
	sourcePath, err := resolver.Resolve(configRoot, alias)
	if err != nil {
		return nil, err
	}
	if sourcePath == "" {
		slog.DebugContext(ctx, "loadManifest no configuration, using bare exec", "alias", alias)
		return &manifest.Manifest{Exec: alias, EnvSet: map[string]string{}}, nil
	}

	fp, err := fingerprint.Of(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting %s: %w", sourcePath, err)
	}

	cacheRoot, err := cache.Root()
	if err != nil {
		slog.DebugContext(ctx, "loadManifest cache root unavailable", "error", err)
		return manifest.ParseFile(sourcePath)
	}
	if m := cache.Load(cacheRoot, alias, fp); m != nil {
		return m, nil
	}

	m, err := manifest.ParseFile(sourcePath)
	if err != nil {
		return nil, err
	}
	if err := cache.Store(cacheRoot, alias, fp, m); err != nil {
		// Cache trouble never fails the invocation.
		slog.DebugContext(ctx, "loadManifest cache store", "error", err)
	}
	return m, nil
}

func reportFatal(ctx context.Context, alias string, err error) {
	slog.ErrorContext(ctx, "chopper failed", "alias", alias, "error", err)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		fmt.Fprintf(os.Stderr, "chopper: %s: %v\n", alias, err)
		return
	}
	fmt.Fprintf(os.Stderr, "chopper: %s: %v\n", alias, strings.ReplaceAll(err.Error(), "\n", " "))
}

func initSlog() {
	logPath := strings.TrimSpace(os.Getenv(logFileEnv))
	if logPath == "" {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return
	}
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
}
