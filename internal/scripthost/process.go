package scripthost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/d5/tengo/v2"

	"github.com/chopper-cli/chopper/internal/validate"
)

// registerProcess installs the process-spawn group. Reconcile profile
// only.
func registerProcess(s *tengo.Script) error {
	if err := addFn(s, "proc_run", procRun); err != nil {
		return err
	}
	return addFn(s, "proc_run_with", procRunWith)
}

func procRun(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 3); err != nil {
		return nil, err
	}
	return procRunInternal(args[0], args[1], &tengo.Map{Value: map[string]tengo.Object{}}, strObj(""), args[2])
}

func procRunWith(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 5); err != nil {
		return nil, err
	}
	return procRunInternal(args[0], args[1], args[2], args[3], args[4])
}

func procRunInternal(execObj, argsObj, envObj, cwdObj, timeoutObj tengo.Object) (tengo.Object, error) {
	all := []tengo.Object{execObj, argsObj, envObj, cwdObj, timeoutObj}

	execName, err := stringArg(all, 0, "exec")
	if err != nil {
		return nil, err
	}
	execName, err = validate.NotBlank("exec", execName)
	if err != nil {
		return nil, err
	}
	argElems, err := arrayArg(all, 1, "args")
	if err != nil {
		return nil, err
	}
	argv, err := stringElems("args", argElems)
	if err != nil {
		return nil, err
	}
	envEntries, err := mapArg(all, 2, "env")
	if err != nil {
		return nil, err
	}
	env, err := stringEntries("env", envEntries)
	if err != nil {
		return nil, err
	}
	cwd, err := stringArg(all, 3, "cwd")
	if err != nil {
		return nil, err
	}
	if err := validate.NoNUL("cwd", cwd); err != nil {
		return nil, err
	}
	timeout, err := timeoutArg(all, 4, "timeout_ms")
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, execName, argv...)
	if len(env) > 0 {
		merged := os.Environ()
		for k, v := range env {
			merged = append(merged, k+"="+v)
		}
		cmd.Env = merged
	}
	if trimmed := strings.TrimSpace(cwd); trimmed != "" {
		cmd.Dir = trimmed
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	if runErr != nil && !timedOut {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to start process %q: %w", execName, runErr)
		}
	}

	status := 0
	if cmd.ProcessState != nil {
		status = cmd.ProcessState.ExitCode()
		if status < 0 {
			status = 0
		}
	}

	return mapObj(map[string]tengo.Object{
		"ok":        boolObj(runErr == nil),
		"timed_out": boolObj(timedOut),
		"stdout":    strObj(stdout.String()),
		"stderr":    strObj(stderr.String()),
		"status":    intObj(int64(status)),
	}), nil
}
