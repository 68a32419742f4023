// Command chopper-journal-broker is the privileged half of chopper: a
// system-bus daemon that provisions journald log namespaces on demand.
// It validates caller ownership, enforces per-uid quotas, clamps policy
// options, writes journald drop-ins, and starts the namespace units.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	kongcompletion "github.com/jotaen/kong-completion"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Context struct {
	RuntimeDir string
	AuditDB    string
	LogLevel   string
}

type CLI struct {
	LogFile    string `default:"/var/log/chopper/broker.log" placeholder:"<log-file-path>" help:"location of the rotating JSON log file"`
	LogLevel   string `default:"info" placeholder:"<debug|info|warn|error>" help:"the logging level (debug, info, warn, error)"`
	RuntimeDir string `default:"/run/systemd" placeholder:"<runtime-dir>" help:"journald runtime tree holding namespace state and drop-ins"`
	AuditDB    string `default:"/var/lib/chopper/broker-audit.db" placeholder:"<audit-db-path>" help:"SQLite database recording every EnsureNamespace request"`

	Run     RunCmd     `cmd:"" help:"serve EnsureNamespace on the system bus until signalled"`
	Audit   AuditCmd   `cmd:"" help:"print the most recent audit log entries as YAML"`
	Version VersionCmd `cmd:"" help:"print version information about this command"`
}

const description = `Privileged journal namespace broker for chopper.

Serves com.chopperproject.JournalBroker1 on the system bus. Unprivileged
chopper invocations ask it to provision per-user journald namespaces;
the broker validates ownership (u<uid>-<suffix>), enforces quotas,
clamps policy options, and starts the namespace units.`

func (c *CLI) initSlog() {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// The broker is long-lived, so its log rotates; an empty log path
	// sends the log to stderr instead.
	var handler slog.Handler
	if c.LogFile == "" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(&lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("slog initialized", "level", level.String())
}

func main() {
	var cli CLI

	parser := kong.Must(&cli,
		kong.Name("chopper-journal-broker"),
		kong.Description(description),
		kong.Configuration(kongyaml.Loader, "/etc/chopper/broker.yaml", "~/.config/chopper/broker.yaml"),
	)
	kongcompletion.Register(parser)

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cli.initSlog()

	err = ctx.Run(&Context{
		RuntimeDir: cli.RuntimeDir,
		AuditDB:    cli.AuditDB,
		LogLevel:   cli.LogLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "chopper-journal-broker: %v\n", err)
		os.Exit(1)
	}
}
