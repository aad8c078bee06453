// Package frontend feeds C translation units into the bounds engine. It
// parses source files with tree-sitter, registers every relevant
// declaration with the variable registry, records assignment edges,
// allocation sites and pointer arithmetic, and runs the naming heuristics
// that seed the potential-bounds tracker.
//
// The frontend is a collaborator of the engine, not part of it: everything
// it produces flows through the public registration API of bounds.Info.
package frontend

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"github.com/c2safe/arrbounds/bounds"
	"github.com/c2safe/arrbounds/config"
)

// funcInfo carries per-function registration state: parameter and return
// keys plus a name table for resolving identifiers in that function's
// body.
type funcInfo struct {
	name         string
	file         string
	params       []bounds.BoundsKey
	paramNames   []string
	paramNumeric []bool
	paramPointer []bool
	ret          bounds.BoundsKey
	retPointer   bool
	symtab       map[string]bounds.BoundsKey
}

// Frontend drives parsing and registration for one analysis run.
type Frontend struct {
	cfg config.Config
	bi  *bounds.Info

	funcs   map[string]*funcInfo
	globals map[string]bounds.BoundsKey
	// structs maps struct name to its fields' keys by field name.
	structs map[string]map[string]bounds.BoundsKey
}

// New returns a Frontend feeding bi.
func New(cfg config.Config, bi *bounds.Info) *Frontend {
	return &Frontend{
		cfg:     cfg,
		bi:      bi,
		funcs:   map[string]*funcInfo{},
		globals: map[string]bounds.BoundsKey{},
		structs: map[string]map[string]bounds.BoundsKey{},
	}
}

// Info returns the engine this frontend feeds.
func (fe *Frontend) Info() *bounds.Info { return fe.bi }

// ProcessFile parses and registers one C source file.
func (fe *Frontend) ProcessFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return fe.Process(path, src)
}

// Process parses src and feeds its declarations, assignments and
// classifications into the engine. filename only serves as the source
// location namespace.
func (fe *Frontend) Process(filename string, src []byte) error {
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}
	root := tree.RootNode()

	w := &walker{fe: fe, file: filename, src: src}
	w.collectDirectives(root)
	w.register(root)
	w.resolvePending()
	w.flow(root)
	return nil
}

// walker holds the per-file traversal state.
type walker struct {
	fe   *Frontend
	file string
	src  []byte
	// fn is the function currently being walked, nil at file scope.
	fn *funcInfo
	// directives maps source rows to bounds directives found in comments.
	directives map[int]directive
	pending    []pendingBound
}

func (w *walker) content(n *sitter.Node) string {
	return n.Content(w.src)
}

// resolveName finds the key for an identifier, looking through the current
// function's name table first, then file-scope declarations.
func (w *walker) resolveName(name string) (bounds.BoundsKey, bool) {
	if w.fn != nil {
		if k, ok := w.fn.symtab[name]; ok {
			return k, true
		}
	}
	k, ok := w.fe.globals[name]
	return k, ok
}

// typeInfo classifies the "type" child of a declaration.
type typeInfo struct {
	numeric bool
}

var numericTypeNames = map[string]bool{
	"int": true, "long": true, "short": true, "_Bool": true,
	"size_t": true, "ssize_t": true, "ptrdiff_t": true,
	"int8_t": true, "int16_t": true, "int32_t": true, "int64_t": true,
	"uint8_t": true, "uint16_t": true, "uint32_t": true, "uint64_t": true,
}

func (w *walker) classifyType(n *sitter.Node) typeInfo {
	if n == nil {
		return typeInfo{}
	}
	switch n.Type() {
	case "primitive_type", "type_identifier":
		return typeInfo{numeric: numericTypeNames[w.content(n)]}
	case "sized_type_specifier":
		// unsigned int, long long, ...
		return typeInfo{numeric: true}
	default:
		return typeInfo{}
	}
}

// declarator describes one unwrapped declarator: the innermost identifier
// plus what wrapped it.
type declarator struct {
	name     *sitter.Node
	pointer  bool
	array    bool
	arrayLen *sitter.Node // size expression, if any
	function *sitter.Node // function_declarator, if any
	value    *sitter.Node // initializer from init_declarator
}

// unwrapDeclarator walks the declarator chain down to the identifier.
func (w *walker) unwrapDeclarator(n *sitter.Node) declarator {
	var d declarator
	for n != nil {
		switch n.Type() {
		case "init_declarator":
			d.value = n.ChildByFieldName("value")
			n = n.ChildByFieldName("declarator")
		case "pointer_declarator":
			d.pointer = true
			n = n.ChildByFieldName("declarator")
		case "array_declarator":
			d.array = true
			d.arrayLen = n.ChildByFieldName("size")
			n = n.ChildByFieldName("declarator")
		case "function_declarator":
			d.function = n
			n = n.ChildByFieldName("declarator")
		case "parenthesized_declarator":
			var inner *sitter.Node
			for i := 0; i < int(n.NamedChildCount()); i++ {
				inner = n.NamedChild(i)
			}
			n = inner
		case "identifier", "field_identifier":
			d.name = n
			return d
		default:
			// Abstract declarators and anything else we cannot name.
			return d
		}
	}
	return d
}

// register walks the tree and registers every declaration.
func (w *walker) register(n *sitter.Node) {
	switch n.Type() {
	case "function_definition":
		w.registerFunction(n)
		return
	case "declaration":
		w.registerDeclaration(n)
		return
	case "struct_specifier":
		w.registerStruct(n)
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.register(n.NamedChild(i))
	}
}

func (w *walker) registerDeclaration(n *sitter.Node) {
	ti := w.classifyType(n.ChildByFieldName("type"))
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) != "declarator" {
			continue
		}
		d := w.unwrapDeclarator(n.Child(i))
		if d.name == nil {
			continue
		}
		if d.function != nil {
			// A prototype; register its signature so call sites can bind
			// to it, but leave it out of the in-program sets.
			w.registerSignature(d, ti)
			continue
		}
		w.registerVar(d, ti)
	}
	// Nested struct definitions carry their own fields.
	if ty := n.ChildByFieldName("type"); ty != nil && ty.Type() == "struct_specifier" {
		w.registerStruct(ty)
	}
}

func (w *walker) declFor(d declarator) bounds.Decl {
	pt := d.name.StartPoint()
	fn := ""
	if w.fn != nil {
		fn = w.fn.name
	}
	return bounds.Decl{
		Name:     w.content(d.name),
		File:     w.file,
		Line:     int(pt.Row),
		Col:      int(pt.Column),
		Kind:     bounds.KindLocal,
		Function: fn,
	}
}

// registerVar registers one variable declarator, classifies it and applies
// any bounds directive sitting on its line.
func (w *walker) registerVar(d declarator, ti typeInfo) bounds.BoundsKey {
	decl := w.declFor(d)
	decl.Numeric = ti.numeric && !d.pointer && !d.array
	decl.Pointer = d.pointer || d.array
	k := w.fe.bi.InsertVariable(decl)
	w.fe.bi.MarkInProgram(k)
	if w.fn != nil {
		w.fn.symtab[decl.Name] = k
	} else {
		w.fe.globals[decl.Name] = k
	}
	if decl.Pointer {
		w.fe.bi.MarkPointer(k)
	}
	if d.array {
		w.fe.bi.MarkArrayPointer(k)
		if d.arrayLen != nil && d.arrayLen.Type() == "number_literal" {
			if v, err := strconv.ParseInt(w.content(d.arrayLen), 0, 64); err == nil {
				w.fe.bi.DeclareBounds(k, bounds.CountOf(w.fe.bi.ConstKey(v)))
			}
		}
	}
	w.applyDirective(k, int(d.name.StartPoint().Row), w.fn)
	return k
}

// registerSignature registers the parameters and return value of a
// function prototype without a body.
func (w *walker) registerSignature(d declarator, ti typeInfo) {
	name := w.content(d.name)
	if _, ok := w.fe.funcs[name]; ok {
		return
	}
	fi := &funcInfo{
		name:       name,
		file:       w.file,
		retPointer: d.pointer,
		symtab:     map[string]bounds.BoundsKey{},
	}
	fi.ret = w.fe.bi.InsertVariable(bounds.Decl{
		Name:     name,
		File:     w.file,
		Kind:     bounds.KindReturn,
		Function: name,
		Pointer:  d.pointer,
	})
	if d.pointer {
		w.fe.bi.MarkPointer(fi.ret)
	}
	w.registerParams(fi, d.function)
	w.fe.funcs[name] = fi
}

func (w *walker) registerParams(fi *funcInfo, fnDecl *sitter.Node) {
	params := fnDecl.ChildByFieldName("parameters")
	if params == nil {
		return
	}
	idx := 0
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p.Type() != "parameter_declaration" {
			continue
		}
		ti := w.classifyType(p.ChildByFieldName("type"))
		d := w.unwrapDeclarator(p.ChildByFieldName("declarator"))
		name := ""
		if d.name != nil {
			name = w.content(d.name)
		}
		pk := w.fe.bi.InsertVariable(bounds.Decl{
			Name:     name,
			File:     fi.file,
			Kind:     bounds.KindParam,
			Function: fi.name,
			Index:    idx,
			Numeric:  ti.numeric && !d.pointer && !d.array,
			Pointer:  d.pointer || d.array,
		})
		fi.params = append(fi.params, pk)
		fi.paramNames = append(fi.paramNames, name)
		fi.paramNumeric = append(fi.paramNumeric, ti.numeric && !d.pointer && !d.array)
		fi.paramPointer = append(fi.paramPointer, d.pointer || d.array)
		if d.pointer || d.array {
			w.fe.bi.MarkPointer(pk)
		}
		if d.array {
			w.fe.bi.MarkArrayPointer(pk)
		}
		if name != "" {
			fi.symtab[name] = pk
		}
		if d.name != nil {
			w.applyDirective(pk, int(d.name.StartPoint().Row), fi)
		}
		idx++
	}
}

func (w *walker) registerFunction(n *sitter.Node) {
	d := w.unwrapDeclarator(n.ChildByFieldName("declarator"))
	if d.name == nil || d.function == nil {
		return
	}
	name := w.content(d.name)
	fi := w.fe.funcs[name]
	if fi == nil {
		fi = &funcInfo{
			name:       name,
			file:       w.file,
			retPointer: d.pointer,
			symtab:     map[string]bounds.BoundsKey{},
		}
		fi.ret = w.fe.bi.InsertVariable(bounds.Decl{
			Name:     name,
			File:     w.file,
			Kind:     bounds.KindReturn,
			Function: name,
			Pointer:  d.pointer,
		})
		w.fe.funcs[name] = fi
		w.registerParams(fi, d.function)
	}
	w.fe.bi.MarkInProgram(fi.ret)
	if d.pointer {
		w.fe.bi.MarkPointer(fi.ret)
	}
	for _, pk := range fi.params {
		w.fe.bi.MarkInProgram(pk)
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	prev := w.fn
	w.fn = fi
	w.register(body)
	w.fn = prev
}

func (w *walker) registerStruct(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	structName := w.content(nameNode)
	fields := w.fe.structs[structName]
	if fields == nil {
		fields = map[string]bounds.BoundsKey{}
		w.fe.structs[structName] = fields
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		f := body.NamedChild(i)
		if f.Type() != "field_declaration" {
			continue
		}
		ti := w.classifyType(f.ChildByFieldName("type"))
		for j := 0; j < int(f.ChildCount()); j++ {
			if f.FieldNameForChild(j) != "declarator" {
				continue
			}
			d := w.unwrapDeclarator(f.Child(j))
			if d.name == nil {
				continue
			}
			pt := d.name.StartPoint()
			fk := w.fe.bi.InsertVariable(bounds.Decl{
				Name:    w.content(d.name),
				File:    w.file,
				Line:    int(pt.Row),
				Col:     int(pt.Column),
				Kind:    bounds.KindField,
				Struct:  structName,
				Numeric: ti.numeric && !d.pointer && !d.array,
				Pointer: d.pointer || d.array,
			})
			fields[w.content(d.name)] = fk
			w.fe.bi.MarkInProgram(fk)
			if d.pointer || d.array {
				w.fe.bi.MarkPointer(fk)
			}
			if d.array {
				w.fe.bi.MarkArrayPointer(fk)
				if d.arrayLen != nil && d.arrayLen.Type() == "number_literal" {
					if v, err := strconv.ParseInt(w.content(d.arrayLen), 0, 64); err == nil {
						w.fe.bi.DeclareBounds(fk, bounds.CountOf(w.fe.bi.ConstKey(v)))
					}
				}
			}
			w.applyDirective(fk, int(pt.Row), nil)
		}
	}
}

// resolveField resolves a field_expression to a field key. Without full
// type inference we match by field name and only accept a unique match
// across all known structs.
func (w *walker) resolveField(name string) (bounds.BoundsKey, bool) {
	var found bounds.BoundsKey
	n := 0
	for _, structName := range sortedStrings(w.fe.structs) {
		if k, ok := w.fe.structs[structName][name]; ok {
			found = k
			n++
		}
	}
	return found, n == 1
}

func sortedStrings[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
