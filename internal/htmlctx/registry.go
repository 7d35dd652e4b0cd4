package htmlctx

import "strings"

// AllContextKinds returns one prototype of every context variant in a fixed
// order. The catalogue is closed: the lexer never produces a context that is
// missing here.
func AllContextKinds() []Context {
	out := make([]Context, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, New(k, "", ""))
	}
	return out
}

// KindByName looks up a variant by its stable name, case-insensitively
func KindByName(name string) (Kind, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for k := Kind(0); k < kindCount; k++ {
		if kindNames[k] == name {
			return k, true
		}
	}
	return 0, false
}
