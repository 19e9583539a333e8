// env.go builds the child environment for hook scripts. The supervisor in
// internal/script never defaults an environment on its own: the handler is
// the caller that owns environment construction, and it always supplies a
// fully-formed, minimal one.
package hooks

import "strconv"

// minimalPath is the PATH exported to hook scripts. Hooks run with a
// deliberately minimal environment rather than inheriting hookd's own.
const minimalPath = "PATH=/usr/sbin:/usr/bin:/sbin:/bin"

// buildEnv assembles the environment for one hook batch. Never returns nil.
func (h *Handler) buildEnv(class string, jobID uint64, jobUser string) []string {
	env := []string{
		minimalPath,
		"HOOKD_HOOK=" + class,
		"HOOKD_NODE=" + h.node,
	}
	if jobID != 0 {
		env = append(env, "HOOKD_JOB_ID="+strconv.FormatUint(jobID, 10))
	}
	if jobUser != "" {
		env = append(env, "HOOKD_JOB_USER="+jobUser)
	}
	return env
}
