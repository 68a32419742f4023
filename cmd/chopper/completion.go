package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/posener/complete"

	"github.com/chopper-cli/chopper/internal/scripthost"
)

// maybeComplete handles a bash completion request (COMP_LINE in the
// environment). It reports whether a completion was performed; the
// caller exits without running the alias in that case. Completion
// failures are logged and produce no candidates, never a fatal error.
func maybeComplete(alias string) bool {
	if os.Getenv("COMP_LINE") == "" {
		return false
	}

	cmp := complete.New(alias, complete.Command{
		Args: complete.PredictFunc(func(a complete.Args) []string {
			return completionCandidates(alias, a)
		}),
	})
	cmp.Out = os.Stdout
	return cmp.Complete()
}

func completionCandidates(alias string, a complete.Args) []string {
	ctx := context.Background()

	m, err := loadManifest(ctx, alias)
	if err != nil {
		slog.DebugContext(ctx, "completion manifest load", "alias", alias, "error", err)
		return nil
	}
	bc := m.Bashcomp
	if bc == nil || bc.Disabled || bc.Passthrough || bc.ScriptPath == "" {
		// No scripted completion: leave the shell to its defaults.
		return nil
	}

	// Reconstruct COMP_WORDS/COMP_CWORD: the alias itself is word 0,
	// the word at the cursor is the one past everything completed.
	words := append([]string{alias}, a.All...)
	cword := 1 + len(a.Completed)
	if cword >= len(words) {
		cword = len(words) - 1
		if cword < 0 {
			cword = 0
		}
	}

	candidates, err := scripthost.RunComplete(ctx, scripthost.NewHost(scripthost.Completion), m, words, cword)
	if err != nil {
		slog.DebugContext(ctx, "completion hook", "alias", alias, "error", err)
		return nil
	}
	return candidates
}
