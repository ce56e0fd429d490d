package token

// Hideset is an immutable list of macro names that must not be expanded
// again in a token. The nil hideset is empty. Unions copy only their
// receiver, so the tail of a hideset is shared freely between tokens.
type Hideset struct {
	Name string
	Next *Hideset
}

func NewHideset(name string) *Hideset { return &Hideset{Name: name} }

func (hs *Hideset) Contains(name string) bool {
	for ; hs != nil; hs = hs.Next {
		if hs.Name == name {
			return true
		}
	}
	return false
}

// Union returns hs followed by other.
func (hs *Hideset) Union(other *Hideset) *Hideset {
	if hs == nil {
		return other
	}
	head := &Hideset{Name: hs.Name}
	cur := head
	for h := hs.Next; h != nil; h = h.Next {
		cur.Next = &Hideset{Name: h.Name}
		cur = cur.Next
	}
	cur.Next = other
	return head
}

func (hs *Hideset) Intersection(other *Hideset) *Hideset {
	var head Hideset
	cur := &head
	for ; hs != nil; hs = hs.Next {
		if other.Contains(hs.Name) {
			cur.Next = &Hideset{Name: hs.Name}
			cur = cur.Next
		}
	}
	return head.Next
}

// Names lists the hideset contents in order.
func (hs *Hideset) Names() []string {
	var names []string
	for ; hs != nil; hs = hs.Next {
		names = append(names, hs.Name)
	}
	return names
}

// AddHideset returns a copy of the token list with hs merged into every
// token's hideset.
func AddHideset(tok *Token, hs *Hideset) *Token {
	var head Token
	cur := &head
	for ; tok != nil; tok = tok.Next {
		t := tok.Copy()
		t.Hideset = t.Hideset.Union(hs)
		cur.Next = t
		cur = t
	}
	return head.Next
}
