package frontend

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c2safe/arrbounds/bounds"
)

// A directive is a comment of the form '// bounds:<kind>(<expr>)' attached
// to a declaration, either trailing on the same line or on the line above.
// It declares the bound of the annotated pointer.
type directive struct {
	kind bounds.BoundKind
	expr string
}

// parseDirective parses the text of one comment. Supported forms:
//
//	// bounds:count(n)
//	// bounds:count(n + 1)
//	// bounds:byte_count(sz)
func parseDirective(s string) (directive, bool) {
	s = strings.TrimPrefix(s, "/*")
	s = strings.TrimSuffix(s, "*/")
	s = strings.TrimPrefix(s, "//")
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "bounds:") {
		return directive{}, false
	}
	s = strings.TrimPrefix(s, "bounds:")
	open := strings.IndexByte(s, '(')
	close_ := strings.LastIndexByte(s, ')')
	if open < 0 || close_ < open {
		return directive{}, false
	}
	kind := strings.TrimSpace(s[:open])
	expr := strings.TrimSpace(s[open+1 : close_])

	d := directive{expr: expr}
	switch kind {
	case "count":
		d.kind = bounds.CountBound
		if base, ok := strings.CutSuffix(expr, "+ 1"); ok {
			d.kind = bounds.CountPlusOneBound
			d.expr = strings.TrimSpace(base)
		} else if base, ok := strings.CutSuffix(expr, "+1"); ok {
			d.kind = bounds.CountPlusOneBound
			d.expr = strings.TrimSpace(base)
		}
	case "byte_count":
		d.kind = bounds.ByteBound
	default:
		return directive{}, false
	}
	if d.expr == "" {
		return directive{}, false
	}
	return d, true
}

// collectDirectives indexes all bounds directives in the file by source
// row.
func (w *walker) collectDirectives(root *sitter.Node) {
	w.directives = map[int]directive{}
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n.Type() == "comment" {
			if d, ok := parseDirective(w.content(n)); ok {
				w.directives[int(n.StartPoint().Row)] = d
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)
}

// pendingBound is a directive waiting for name resolution. Resolution is
// deferred until the whole file is registered so a length variable
// declared after its pointer still resolves.
type pendingBound struct {
	key bounds.BoundsKey
	d   directive
	fn  *funcInfo
}

// applyDirective attaches the directive on row (trailing) or row-1
// (leading), if any, to the declaration registered as k. Only pointers
// take directives; a scalar declared on the same line is left alone. fn is
// the function whose name table the directive expression resolves in, nil
// for file-scope declarations.
func (w *walker) applyDirective(k bounds.BoundsKey, row int, fn *funcInfo) {
	if !w.fe.bi.IsPointer(k) {
		return
	}
	d, ok := w.directives[row]
	if !ok {
		d, ok = w.directives[row-1]
	}
	if !ok {
		return
	}
	w.pending = append(w.pending, pendingBound{key: k, d: d, fn: fn})
}

// resolvePending resolves directive expressions against the now-complete
// name tables and installs the resulting Declared-tier bounds. A directive
// naming something we cannot resolve is recorded as declared but not
// handled — never an error.
func (w *walker) resolvePending() {
	for _, p := range w.pending {
		lk, ok := w.resolveBoundExpr(p.d.expr, p.fn)
		if !ok {
			w.fe.bi.BStats().DeclaredBounds.Insert(int(p.key))
			w.fe.bi.BStats().DeclaredButNotHandled.Insert(int(p.key))
			continue
		}
		w.fe.bi.DeclareBounds(p.key, bounds.Bound{Kind: p.d.kind, K: lk})
	}
	w.pending = w.pending[:0]
}

func (w *walker) resolveBoundExpr(expr string, fn *funcInfo) (bounds.BoundsKey, bool) {
	if v, err := strconv.ParseInt(expr, 0, 64); err == nil {
		return w.fe.bi.ConstKey(v), true
	}
	if fn != nil {
		if k, ok := fn.symtab[expr]; ok {
			return k, true
		}
	}
	if k, ok := w.fe.globals[expr]; ok {
		return k, true
	}
	// Struct fields may be named by sibling-field directives.
	if k, ok := w.resolveField(expr); ok {
		return k, true
	}
	return 0, false
}
