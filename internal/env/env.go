package env

import (
	"os"
	"sort"
	"strings"
)

// Env composes the environment handed to every worker process.
// Precedence, lowest first: controller OS environment (when UseOS), global
// variables, per-call overrides. Values may reference ${VAR}.
type Env struct {
	UseOS bool
	vars  map[string]string
}

// New returns an Env seeded with "KEY=VALUE" pairs; malformed entries are skipped.
func New(useOS bool, kvs []string) *Env {
	e := &Env{UseOS: useOS, vars: make(map[string]string)}
	e.SetPairs(kvs)
	return e
}

func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	if e.vars == nil {
		e.vars = make(map[string]string)
	}
	e.vars[k] = v
}

func (e *Env) Unset(k string) { delete(e.vars, k) }

// SetPairs applies "KEY=VALUE" entries in order.
func (e *Env) SetPairs(kvs []string) {
	for _, kv := range kvs {
		if k, v, ok := split(kv); ok {
			e.Set(k, v)
		}
	}
}

// Merge returns the sorted "KEY=VALUE" list after applying overrides and
// expanding ${VAR} references against the composed set (single pass).
func (e *Env) Merge(overrides []string) []string {
	m := make(map[string]string)
	if e.UseOS {
		for _, kv := range os.Environ() {
			if k, v, ok := split(kv); ok {
				m[k] = v
			}
		}
	}
	for k, v := range e.vars {
		m[k] = v
	}
	for _, kv := range overrides {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

func expand(s string, m map[string]string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			break
		}
		b.WriteString(s[:i])
		k := s[i+2 : i+j]
		if v, ok := m[k]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+j+1])
		}
		s = s[i+j+1:]
	}
	b.WriteString(s)
	return b.String()
}
