package projection

import (
	"fmt"
	"strings"
)

// Pointers follow RFC 6901. Settings keys routinely contain literal
// dots ("editor.formatOnSave"), so dotted paths cannot address them;
// "/" with "~0"/"~1" escaping can.

// ParsePointer splits a JSON pointer into unescaped reference tokens.
// The empty pointer addresses the document root, which no projection
// may own, so it is rejected here.
func ParsePointer(ptr string) ([]string, error) {
	if ptr == "" {
		return nil, fmt.Errorf("empty json pointer")
	}
	if !strings.HasPrefix(ptr, "/") {
		return nil, fmt.Errorf("json pointer %q must start with /", ptr)
	}
	parts := strings.Split(ptr[1:], "/")
	tokens := make([]string, len(parts))
	for i, p := range parts {
		if strings.ContainsRune(p, '~') && !validEscapes(p) {
			return nil, fmt.Errorf("json pointer %q: invalid escape in token %q", ptr, p)
		}
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		tokens[i] = p
	}
	return tokens, nil
}

// EscapeToken escapes a single reference token for embedding in a
// pointer.
func EscapeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	return strings.ReplaceAll(tok, "/", "~1")
}

// JoinPointer builds a pointer from raw (unescaped) tokens.
func JoinPointer(tokens ...string) string {
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteByte('/')
		b.WriteString(EscapeToken(tok))
	}
	return b.String()
}

func validEscapes(tok string) bool {
	for i := 0; i < len(tok); i++ {
		if tok[i] != '~' {
			continue
		}
		if i+1 >= len(tok) || (tok[i+1] != '0' && tok[i+1] != '1') {
			return false
		}
	}
	return true
}
