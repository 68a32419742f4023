package scripthost

import (
	"fmt"
	"os"
	"sort"

	"github.com/d5/tengo/v2"

	"github.com/chopper-cli/chopper/internal/validate"
)

// registerFSRead installs the read-only filesystem group. Available in
// every profile.
func registerFSRead(s *tengo.Script) error {
	if err := addFn(s, "fs_exists", fsExists); err != nil {
		return err
	}
	if err := addFn(s, "fs_stat", fsStat); err != nil {
		return err
	}
	if err := addFn(s, "fs_list", fsList); err != nil {
		return err
	}
	return addFn(s, "fs_read_text", fsReadText)
}

// registerFSWrite installs the mutating filesystem group. Reconcile
// profile only.
func registerFSWrite(s *tengo.Script) error {
	if err := addFn(s, "fs_write_text", fsWriteText); err != nil {
		return err
	}
	if err := addFn(s, "fs_mkdir", fsMkdir); err != nil {
		return err
	}
	return addFn(s, "fs_remove", fsRemove)
}

func fsExists(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 1); err != nil {
		return nil, err
	}
	path, err := pathArg(args, 0, "path")
	if err != nil {
		return nil, err
	}
	_, statErr := os.Stat(path)
	return boolObj(statErr == nil), nil
}

func fsStat(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 1); err != nil {
		return nil, err
	}
	path, err := pathArg(args, 0, "path")
	if err != nil {
		return nil, err
	}

	out := map[string]tengo.Object{"path": strObj(path)}
	info, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		out["exists"] = boolObj(true)
		out["is_file"] = boolObj(info.Mode().IsRegular())
		out["is_dir"] = boolObj(info.IsDir())
		out["len"] = intObj(info.Size())
		out["readonly"] = boolObj(info.Mode().Perm()&0o200 == 0)
		out["modified_epoch_secs"] = intObj(info.ModTime().Unix())
	case os.IsNotExist(statErr):
		out["exists"] = boolObj(false)
		out["is_file"] = boolObj(false)
		out["is_dir"] = boolObj(false)
		out["len"] = intObj(0)
		out["readonly"] = boolObj(false)
		out["modified_epoch_secs"] = intObj(0)
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}
	return mapObj(out), nil
}

func fsList(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 1); err != nil {
		return nil, err
	}
	path, err := pathArg(args, 0, "path")
	if err != nil {
		return nil, err
	}
	entries, readErr := os.ReadDir(path)
	if readErr != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, readErr)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return strArrayObj(names), nil
}

func fsReadText(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 1); err != nil {
		return nil, err
	}
	path, err := pathArg(args, 0, "path")
	if err != nil {
		return nil, err
	}
	raw, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, readErr)
	}
	return strObj(string(raw)), nil
}

func fsWriteText(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 2); err != nil {
		return nil, err
	}
	path, err := pathArg(args, 0, "path")
	if err != nil {
		return nil, err
	}
	text, err := stringArg(args, 1, "text")
	if err != nil {
		return nil, err
	}
	if err := validate.NoNUL("text", text); err != nil {
		return nil, err
	}
	if writeErr := os.WriteFile(path, []byte(text), 0o644); writeErr != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, writeErr)
	}
	return mapObj(map[string]tengo.Object{
		"ok":            boolObj(true),
		"path":          strObj(path),
		"bytes_written": intObj(int64(len(text))),
	}), nil
}

func fsMkdir(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 2); err != nil {
		return nil, err
	}
	path, err := pathArg(args, 0, "path")
	if err != nil {
		return nil, err
	}
	recursive, err := boolArg(args, 1, "recursive")
	if err != nil {
		return nil, err
	}
	var mkErr error
	if recursive {
		mkErr = os.MkdirAll(path, 0o755)
	} else {
		mkErr = os.Mkdir(path, 0o755)
	}
	if mkErr != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, mkErr)
	}
	return mapObj(map[string]tengo.Object{
		"ok":        boolObj(true),
		"path":      strObj(path),
		"recursive": boolObj(recursive),
	}), nil
}

func fsRemove(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 2); err != nil {
		return nil, err
	}
	path, err := pathArg(args, 0, "path")
	if err != nil {
		return nil, err
	}
	recursive, err := boolArg(args, 1, "recursive")
	if err != nil {
		return nil, err
	}

	info, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		return mapObj(map[string]tengo.Object{
			"ok":      boolObj(true),
			"removed": boolObj(false),
			"path":    strObj(path),
		}), nil
	}
	if statErr != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", path, statErr)
	}

	var rmErr error
	if info.IsDir() && recursive {
		rmErr = os.RemoveAll(path)
	} else {
		rmErr = os.Remove(path)
	}
	if rmErr != nil {
		return nil, fmt.Errorf("failed to remove %s: %w", path, rmErr)
	}
	return mapObj(map[string]tengo.Object{
		"ok":      boolObj(true),
		"removed": boolObj(true),
		"path":    strObj(path),
	}), nil
}
