package doctree

import "strings"

// Flatten lists the leaves of a normalized value keyed by their slash path relative to the value.
// A non-object value is a single leaf at "". Arrays are leaves.
func Flatten(v any) map[string]any {
	out := map[string]any{}
	flatten("", v, out)
	return out
}

func flatten(prefix string, v any, out map[string]any) {
	m, ok := v.(map[string]any)
	if !ok {
		if v != nil {
			out[prefix] = v
		}
		return
	}
	for k, c := range m {
		p := k
		if prefix != "" {
			p = prefix + "/" + k
		}
		flatten(p, c, out)
	}
}

// Assemble is the inverse of Flatten. A leaf at "" wins only when no other leaf exists.
func Assemble(leaves map[string]any) any {
	if len(leaves) == 0 {
		return nil
	}
	if v, ok := leaves[""]; ok && len(leaves) == 1 {
		return v
	}
	t := New()
	for rel, v := range leaves {
		if rel == "" {
			continue
		}
		t.Set(strings.Split(rel, "/"), v)
	}
	return t.root
}

// Rel returns the path of full relative to base, and whether full lies at or below base.
func Rel(base, full string) (string, bool) {
	if base == "" {
		return full, true
	}
	if full == base {
		return "", true
	}
	if strings.HasPrefix(full, base+"/") {
		return full[len(base)+1:], true
	}
	return "", false
}

// Ancestors lists every proper prefix path of p, shortest first.
func Ancestors(p string) []string {
	var out []string
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[:i])
		}
	}
	return out
}
