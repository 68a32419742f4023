package scripthost

import (
	"io/fs"
	"os"
	"runtime"

	"github.com/d5/tengo/v2"
)

// registerPlatform installs the platform/identity query group. Available
// in every profile.
func registerPlatform(s *tengo.Script) error {
	if err := addFn(s, "platform_info", platformInfo); err != nil {
		return err
	}
	if err := addFn(s, "platform_is_unix", platformIsUnix); err != nil {
		return err
	}
	if err := addFn(s, "executable_intent", executableIntent); err != nil {
		return err
	}
	if err := addFn(s, "can_execute_without_confirmation", canExecute); err != nil {
		return err
	}
	return addFn(s, "can_execute_with_confirmation", canExecute)
}

func platformInfo(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 0); err != nil {
		return nil, err
	}
	return mapObj(map[string]tengo.Object{
		"os":                       strObj(runtime.GOOS),
		"family":                   strObj("unix"),
		"arch":                     strObj(runtime.GOARCH),
		"exe_suffix":               strObj(""),
		"supports_posix_mode_bits": boolObj(true),
	}), nil
}

func platformIsUnix(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 0); err != nil {
		return nil, err
	}
	return boolObj(true), nil
}

func executableIntent(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 1); err != nil {
		return nil, err
	}
	path, err := pathArg(args, 0, "path")
	if err != nil {
		return nil, err
	}

	info, statErr := os.Stat(path)
	exists := statErr == nil
	isFile := exists && info.Mode().IsRegular()
	isDir := exists && info.IsDir()
	executable := isFile && info.Mode().Perm()&0o111 != 0

	return mapObj(map[string]tengo.Object{
		"path":                             strObj(path),
		"exists":                           boolObj(exists),
		"is_file":                          boolObj(isFile),
		"is_dir":                           boolObj(isDir),
		"can_execute_without_confirmation": boolObj(executable),
		"can_execute_with_confirmation":    boolObj(executable),
		"requires_user_confirmation":       boolObj(false),
	}), nil
}

func canExecute(args ...tengo.Object) (tengo.Object, error) {
	if err := argCount(args, 1); err != nil {
		return nil, err
	}
	path, err := pathArg(args, 0, "path")
	if err != nil {
		return nil, err
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		return boolObj(false), nil
	}
	return boolObj(info.Mode().IsRegular() && info.Mode().Perm()&fs.FileMode(0o111) != 0), nil
}
