package manifest

// BuildInvocation composes the final, immutable Invocation from a
// manifest, the CLI arguments the alias was invoked with, and an
// optional reconcile patch. The order of operations is load-bearing:
//
//  1. args <- manifest.Args, env <- manifest.EnvSet, envRemove <- manifest.EnvRemove
//  2. append cliArgs to args
//  3. if patch present: replace_args (when set) discards 1-2, then append append_args;
//     for each set_env(k,v): drop k from envRemove, then env[k] = v;
//     append remove_env to envRemove
//  4. dedupe envRemove, first-seen order
//  5. delete every envRemove key from env
func BuildInvocation(m *Manifest, cliArgs []string, patch *Patch) Invocation {
	args := append([]string{}, m.Args...)
	env := copyEnv(m.EnvSet)
	envRemove := append([]string{}, m.EnvRemove...)

	args = append(args, cliArgs...)

	if patch != nil {
		if patch.HasReplace {
			args = append([]string{}, patch.ReplaceArgs...)
		}
		args = append(args, patch.AppendArgs...)

		for k, v := range patch.SetEnv {
			envRemove = removeString(envRemove, k)
			env[k] = v
		}
		envRemove = append(envRemove, patch.RemoveEnv...)
	}

	envRemove = dedupeFirstSeen(envRemove)
	for _, k := range envRemove {
		delete(env, k)
	}

	return Invocation{
		Exec:      m.Exec,
		Args:      args,
		EnvSet:    env,
		EnvRemove: envRemove,
		Journal:   m.Journal,
	}
}

func copyEnv(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func removeString(slice []string, target string) []string {
	out := slice[:0:0]
	for _, s := range slice {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func dedupeFirstSeen(slice []string) []string {
	seen := make(map[string]struct{}, len(slice))
	out := make([]string, 0, len(slice))
	for _, s := range slice {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
