package frontend

import (
	"fmt"
	"slices"
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c2safe/arrbounds/bounds"
)

// flow walks the tree a second time and records everything that moves
// values around: assignments, initializers, call-site bindings, returns,
// allocator calls and pointer arithmetic.
func (w *walker) flow(n *sitter.Node) {
	switch n.Type() {
	case "function_definition":
		d := w.unwrapDeclarator(n.ChildByFieldName("declarator"))
		if d.name == nil {
			return
		}
		fi := w.fe.funcs[w.content(d.name)]
		if fi == nil {
			return
		}
		prev := w.fn
		w.fn = fi
		if body := n.ChildByFieldName("body"); body != nil {
			w.flowChildren(body)
		}
		w.fn = prev
		return
	case "declaration":
		w.flowDeclaration(n)
		return
	case "assignment_expression":
		w.flowAssignment(n)
		return
	case "update_expression":
		// p++ / p-- perturbs the pointer.
		if arg := n.ChildByFieldName("argument"); arg != nil {
			for _, k := range w.resolveExpr(arg) {
				if w.fe.bi.IsPointer(k) {
					w.fe.bi.RecordArithmetic(k)
					w.fe.bi.MarkArrayPointer(k)
				}
			}
		}
		return
	case "subscript_expression":
		if arg := n.ChildByFieldName("argument"); arg != nil {
			for _, k := range w.resolveExpr(arg) {
				if w.fe.bi.IsPointer(k) {
					w.fe.bi.MarkArrayPointer(k)
				}
			}
		}
		w.flowChildren(n)
		return
	case "call_expression":
		w.flowCall(n, nil)
		return
	case "return_statement":
		if w.fn != nil && n.NamedChildCount() > 0 {
			arg := n.NamedChild(0)
			w.flowValueInto([]bounds.BoundsKey{w.fn.ret}, arg)
			// Returning an array pointer makes the return value one.
			for _, k := range w.resolveExpr(unwrapExpr(arg)) {
				if w.fe.bi.IsNtArrayPointer(k) {
					w.fe.bi.MarkNtArrayPointer(w.fn.ret)
				} else if w.fe.bi.IsArrayPointer(k) {
					w.fe.bi.MarkArrayPointer(w.fn.ret)
				}
			}
		}
		return
	}
	w.flowChildren(n)
}

func (w *walker) flowChildren(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.flow(n.NamedChild(i))
	}
}

func (w *walker) flowDeclaration(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) != "declarator" {
			continue
		}
		d := w.unwrapDeclarator(n.Child(i))
		if d.name == nil || d.value == nil {
			continue
		}
		if k, ok := w.resolveName(w.content(d.name)); ok {
			w.flowValueInto([]bounds.BoundsKey{k}, d.value)
		}
	}
}

func (w *walker) flowAssignment(n *sitter.Node) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	op := n.ChildByFieldName("operator")
	if left == nil || right == nil {
		return
	}
	// Left-hand sides like p[i] still classify p.
	w.flow(left)
	lks := w.resolveExpr(left)
	if op != nil {
		switch w.content(op) {
		case "+=", "-=":
			for _, l := range lks {
				if w.fe.bi.IsPointer(l) {
					w.fe.bi.RecordArithmetic(l)
					w.fe.bi.MarkArrayPointer(l)
				}
			}
			w.flow(right)
			return
		case "=":
		default:
			// Arithmetic compound assignments on scalars carry no flow we
			// track.
			w.flow(right)
			return
		}
	}
	if len(lks) == 0 {
		w.flow(right)
		return
	}
	w.flowValueInto(lks, right)
}

// flowValueInto records the effect of assigning the expression rhs into
// the keys lks.
func (w *walker) flowValueInto(lks []bounds.BoundsKey, rhs tsNode) {
	rhs = unwrapExpr(rhs)
	switch rhs.Type() {
	case "call_expression":
		w.flowCall(rhs, lks)
		return
	case "binary_expression":
		if w.flowPointerArith(lks, rhs) {
			return
		}
	case "pointer_expression":
		// &x and *x: treat the operand as the flow source.
		if arg := rhs.ChildByFieldName("argument"); arg != nil {
			w.flowValueInto(lks, arg)
			return
		}
	}
	rks := w.resolveExpr(rhs)
	if len(rks) > 0 {
		w.fe.bi.HandleAssignment(lks, rks)
	}
	w.flow(rhs)
}

// flowPointerArith handles 'l = p + i' style expressions. It reports
// whether the expression was pointer arithmetic.
func (w *walker) flowPointerArith(lks []bounds.BoundsKey, n tsNode) bool {
	op := n.ChildByFieldName("operator")
	if op == nil {
		return false
	}
	switch w.content(op) {
	case "+", "-":
	default:
		return false
	}
	arith := false
	for _, side := range []tsNode{n.ChildByFieldName("left"), n.ChildByFieldName("right")} {
		if side == nil {
			continue
		}
		for _, k := range w.resolveExpr(unwrapExpr(side)) {
			if w.fe.bi.IsPointer(k) {
				arith = true
				w.fe.bi.RecordArithmetic(k)
				w.fe.bi.MarkArrayPointer(k)
			}
		}
	}
	if !arith {
		return false
	}
	for _, l := range lks {
		if w.fe.bi.IsPointer(l) {
			w.fe.bi.RecordArithmetic(l)
			w.fe.bi.MarkArrayPointer(l)
		}
	}
	return true
}

// flowCall handles one call expression. lks, when non-empty, are the keys
// the call's result is assigned to.
func (w *walker) flowCall(n tsNode, lks []bounds.BoundsKey) {
	fnNode := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fnNode == nil || fnNode.Type() != "identifier" {
		w.flowChildren(n)
		return
	}
	name := w.content(fnNode)
	var argNodes []tsNode
	if args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			argNodes = append(argNodes, args.NamedChild(i))
		}
	}

	if slices.Contains(w.fe.cfg.Allocators.Count, name) {
		w.seedAllocator(name, lks, argNodes)
		return
	}
	if slices.Contains(w.fe.cfg.Allocators.Impossible, name) {
		for _, l := range lks {
			w.fe.bi.MarkNtArrayPointer(l)
			w.fe.bi.MarkImpossible(l)
		}
		return
	}
	switch name {
	case "strlen":
		// n = strlen(s): s is null-terminated and n+1 elements long.
		if len(argNodes) == 1 {
			for _, s := range w.resolveExpr(unwrapExpr(argNodes[0])) {
				if !w.fe.bi.IsPointer(s) {
					continue
				}
				w.fe.bi.MarkNtArrayPointer(s)
				w.fe.bi.Potential().AddCountPlusOne(s, lks, bounds.HeuristicVariableName)
			}
		}
		return
	case "strcpy", "strcat", "strcmp":
		for _, a := range argNodes {
			for _, k := range w.resolveExpr(unwrapExpr(a)) {
				if w.fe.bi.IsPointer(k) {
					w.fe.bi.MarkNtArrayPointer(k)
				}
			}
		}
		return
	case "memcpy", "memmove", "memset", "memcmp":
		for _, a := range argNodes {
			for _, k := range w.resolveExpr(unwrapExpr(a)) {
				if w.fe.bi.IsPointer(k) {
					w.fe.bi.MarkArrayPointer(k)
				}
			}
		}
		return
	}

	callee := w.fe.funcs[name]
	if callee == nil {
		w.flowChildren(n)
		return
	}
	pt := n.StartPoint()
	callSite := fmt.Sprintf("%s:%d:%d", w.file, pt.Row, pt.Column)
	caller := ""
	if w.fn != nil {
		caller = w.fn.name
	}
	scope := bounds.CallSiteScope(caller, w.file, callSite)
	for i, a := range argNodes {
		if i >= len(callee.params) {
			break
		}
		aks := w.resolveExpr(unwrapExpr(a))
		if len(aks) == 0 {
			continue
		}
		ctxParam := w.fe.bi.CtxSensKey(callSite, scope, callee.params[i])
		w.fe.bi.HandleAssignment([]bounds.BoundsKey{ctxParam}, aks)
	}
	if len(lks) > 0 {
		ctxRet := w.fe.bi.CtxSensKey(callSite, scope, callee.ret)
		w.fe.bi.HandleAssignment(lks, []bounds.BoundsKey{ctxRet})
	}
}

// seedAllocator installs an Allocator-tier bound from one allocation call.
func (w *walker) seedAllocator(name string, lks []bounds.BoundsKey, argNodes []tsNode) {
	if len(lks) == 0 || len(argNodes) == 0 {
		return
	}
	// realloc's size is its second argument.
	sizeArg := argNodes[0]
	if name == "realloc" && len(argNodes) > 1 {
		sizeArg = argNodes[1]
	}
	b, ok := w.allocatorBound(unwrapExpr(sizeArg))
	if !ok {
		return
	}
	for _, l := range lks {
		w.fe.bi.MarkArrayPointer(l)
		if w.fe.bi.MergeBounds(l, bounds.Allocator, b) {
			w.fe.bi.BStats().AllocatorMatch.Insert(int(l))
		}
	}
}

// allocatorBound derives a bound from an allocation-size expression:
// 'n' and 'n * sizeof(T)' yield count(n), a literal yields a constant
// count.
func (w *walker) allocatorBound(size tsNode) (bounds.Bound, bool) {
	switch size.Type() {
	case "identifier", "field_expression":
		ks := w.resolveExpr(size)
		if len(ks) == 1 {
			return bounds.CountOf(ks[0]), true
		}
	case "number_literal":
		if v, err := strconv.ParseInt(w.content(size), 0, 64); err == nil {
			return bounds.CountOf(w.fe.bi.ConstKey(v)), true
		}
	case "binary_expression":
		op := size.ChildByFieldName("operator")
		if op == nil || w.content(op) != "*" {
			break
		}
		l := unwrapExpr(size.ChildByFieldName("left"))
		r := unwrapExpr(size.ChildByFieldName("right"))
		if l == nil || r == nil {
			break
		}
		if l.Type() == "sizeof_expression" {
			return w.allocatorBound(r)
		}
		if r.Type() == "sizeof_expression" {
			return w.allocatorBound(l)
		}
	}
	return bounds.Bound{}, false
}

type tsNode = *sitter.Node

// unwrapExpr strips parentheses and casts.
func unwrapExpr(n tsNode) tsNode {
	for n != nil {
		switch n.Type() {
		case "parenthesized_expression":
			if n.NamedChildCount() == 0 {
				return n
			}
			n = n.NamedChild(0)
		case "cast_expression":
			v := n.ChildByFieldName("value")
			if v == nil {
				return n
			}
			n = v
		default:
			return n
		}
	}
	return n
}

// resolveExpr resolves an expression to the bounds keys it denotes.
// Identifiers resolve through the name tables, field accesses by unique
// field name, integer literals to interned constant keys. Anything else
// resolves to nothing, which simply means no flow is recorded for it.
func (w *walker) resolveExpr(n tsNode) []bounds.BoundsKey {
	n = unwrapExpr(n)
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		if k, ok := w.resolveName(w.content(n)); ok {
			return []bounds.BoundsKey{k}
		}
	case "number_literal":
		if v, err := strconv.ParseInt(w.content(n), 0, 64); err == nil {
			return []bounds.BoundsKey{w.fe.bi.ConstKey(v)}
		}
	case "field_expression":
		if f := n.ChildByFieldName("field"); f != nil {
			if k, ok := w.resolveField(w.content(f)); ok {
				return []bounds.BoundsKey{k}
			}
		}
	case "pointer_expression":
		if arg := n.ChildByFieldName("argument"); arg != nil {
			return w.resolveExpr(arg)
		}
	}
	return nil
}
