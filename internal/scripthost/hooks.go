package scripthost

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/d5/tengo/v2"

	"github.com/chopper-cli/chopper/internal/manifest"
)

// RunReconcile invokes the manifest's reconcile hook against a read-only
// context and decodes the returned mapping into a runtime patch. The
// host must carry the Reconcile profile.
func RunReconcile(ctx context.Context, h *Host, m *manifest.Manifest, runtimeArgs []string) (*manifest.Patch, error) {
	if m.Reconcile == nil {
		return nil, nil
	}
	if h.Profile() != Reconcile {
		return nil, fmt.Errorf("reconcile hook requires a reconcile-profile host")
	}

	hookCtx := map[string]any{
		"runtime_args": toAnySlice(runtimeArgs),
		"runtime_env":  environMap(),
		"alias_args":   toAnySlice(m.Args),
		"alias_env":    toAnyMap(m.EnvSet),
	}

	out, err := h.Call(ctx, m.Reconcile.ScriptPath, m.Reconcile.FunctionNameOrDefault(), hookCtx)
	if err != nil {
		return nil, err
	}
	return decodePatch(out)
}

// RunComplete invokes the manifest's completion hook and returns the
// candidate strings it produced. Candidates containing NUL are silently
// dropped.
func RunComplete(ctx context.Context, h *Host, m *manifest.Manifest, words []string, cword int) ([]string, error) {
	bc := m.Bashcomp
	if bc == nil || bc.Disabled || bc.Passthrough || bc.ScriptPath == "" {
		return nil, fmt.Errorf("alias has no completion script configured")
	}
	if cword < 0 {
		return nil, fmt.Errorf("cword cannot be negative")
	}

	current := ""
	if cword < len(words) {
		current = words[cword]
	}

	hookCtx := map[string]any{
		"words":      toAnySlice(words),
		"cword":      int64(cword),
		"current":    current,
		"exec":       m.Exec,
		"alias_args": toAnySlice(m.Args),
		"alias_env":  toAnyMap(m.EnvSet),
	}

	out, err := h.Call(ctx, bc.ScriptPath, bc.FunctionNameOrDefault(), hookCtx)
	if err != nil {
		return nil, err
	}
	return decodeCandidates(out)
}

// decodePatch walks the hook's returned value as a tagged variant:
// it must be a mapping; unknown top-level keys are ignored; known keys
// must hold string sequences or string mappings.
func decodePatch(out tengo.Object) (*manifest.Patch, error) {
	entries, ok := asMap(out)
	if !ok {
		return nil, fmt.Errorf("reconcile function must return a map, got %s", out.TypeName())
	}

	patch := &manifest.Patch{}
	if v, present := entries["replace_args"]; present {
		values, err := decodeStringSeq("replace_args", v)
		if err != nil {
			return nil, err
		}
		patch.HasReplace = true
		patch.ReplaceArgs = values
	}
	if v, present := entries["append_args"]; present {
		values, err := decodeStringSeq("append_args", v)
		if err != nil {
			return nil, err
		}
		patch.AppendArgs = values
	}
	if v, present := entries["set_env"]; present {
		values, err := decodeStringMap("set_env", v)
		if err != nil {
			return nil, err
		}
		patch.SetEnv = values
	}
	if v, present := entries["remove_env"]; present {
		values, err := decodeStringSeq("remove_env", v)
		if err != nil {
			return nil, err
		}
		patch.RemoveEnv = values
	}
	return patch, nil
}

func decodeCandidates(out tengo.Object) ([]string, error) {
	elems, ok := asArray(out)
	if !ok {
		return nil, fmt.Errorf("completion function must return an array, got %s", out.TypeName())
	}
	candidates := make([]string, 0, len(elems))
	for _, elem := range elems {
		s, ok := elem.(*tengo.String)
		if !ok {
			return nil, fmt.Errorf("all completion candidates must be strings, got %s", elem.TypeName())
		}
		if strings.ContainsRune(s.Value, 0) {
			continue
		}
		candidates = append(candidates, s.Value)
	}
	return candidates, nil
}

func decodeStringSeq(field string, v tengo.Object) ([]string, error) {
	elems, ok := asArray(v)
	if !ok {
		return nil, fmt.Errorf("`%s` must be an array, got %s", field, v.TypeName())
	}
	out := make([]string, 0, len(elems))
	for _, elem := range elems {
		s, ok := elem.(*tengo.String)
		if !ok {
			return nil, fmt.Errorf("all values in `%s` must be strings, got %s", field, elem.TypeName())
		}
		out = append(out, s.Value)
	}
	return out, nil
}

func decodeStringMap(field string, v tengo.Object) (map[string]string, error) {
	entries, ok := asMap(v)
	if !ok {
		return nil, fmt.Errorf("`%s` must be a map, got %s", field, v.TypeName())
	}
	out := make(map[string]string, len(entries))
	for k, elem := range entries {
		s, ok := elem.(*tengo.String)
		if !ok {
			return nil, fmt.Errorf("all values in `%s` must be strings, got %s", field, elem.TypeName())
		}
		out[k] = s.Value
	}
	return out, nil
}

func asMap(v tengo.Object) (map[string]tengo.Object, bool) {
	switch m := v.(type) {
	case *tengo.Map:
		return m.Value, true
	case *tengo.ImmutableMap:
		return m.Value, true
	}
	return nil, false
}

func asArray(v tengo.Object) ([]tengo.Object, bool) {
	switch a := v.(type) {
	case *tengo.Array:
		return a.Value, true
	case *tengo.ImmutableArray:
		return a.Value, true
	}
	return nil, false
}

func toAnySlice(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func toAnyMap(values map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func environMap() map[string]any {
	out := map[string]any{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
