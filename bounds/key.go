package bounds

import "fmt"

// A BoundsKey identifies one program entity — a variable, parameter, return
// value, struct field, or constant — for the purposes of bounds inference.
// Keys are dense, non-zero integers allocated monotonically by an Info; a
// key is never reused for the lifetime of that Info.
type BoundsKey int

// VarKind describes the kind of declaration behind a ProgramVar.
type VarKind int

const (
	KindLocal VarKind = iota
	KindParam
	KindField
	KindReturn
	KindConstant
	KindTemp
)

func (k VarKind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindParam:
		return "param"
	case KindField:
		return "field"
	case KindReturn:
		return "return"
	case KindConstant:
		return "constant"
	case KindTemp:
		return "temp"
	default:
		panic(fmt.Sprintf("unhandled variable kind %d", int(k)))
	}
}

// ScopeKind enumerates the visibility classes of program variables.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeFunction
	ScopeStruct
	ScopeCallSite
)

// Scope describes where a program variable is visible. Only a variable
// visible from a pointer's declaration scope may appear in that pointer's
// bound.
type Scope struct {
	Kind     ScopeKind
	Function string
	// File disambiguates static functions and file-scope statics.
	File     string
	Struct   string
	CallSite string
}

// GlobalScope returns the scope of file-level declarations.
func GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal}
}

// FunctionScope returns the scope of parameters and locals of fn.
func FunctionScope(fn, file string) Scope {
	return Scope{Kind: ScopeFunction, Function: fn, File: file}
}

// StructScope returns the scope of fields of the named struct.
func StructScope(name string) Scope {
	return Scope{Kind: ScopeStruct, Struct: name}
}

// CallSiteScope returns the scope of a context-sensitive specialization of
// fn's parameters or return value at one particular call site.
func CallSiteScope(fn, file, callSite string) Scope {
	return Scope{Kind: ScopeCallSite, Function: fn, File: file, CallSite: callSite}
}

// VisibleFrom reports whether a variable declared in s can be named in a
// bound attached to a variable declared in dst. Globals are visible
// everywhere; function-scoped variables only within the same function;
// fields only within the same struct; call-site specializations only within
// the same call site.
func (s Scope) VisibleFrom(dst Scope) bool {
	switch s.Kind {
	case ScopeGlobal:
		return true
	case ScopeFunction:
		switch dst.Kind {
		case ScopeFunction, ScopeCallSite:
			return s.Function == dst.Function && s.File == dst.File
		default:
			return false
		}
	case ScopeStruct:
		return dst.Kind == ScopeStruct && s.Struct == dst.Struct
	case ScopeCallSite:
		return dst.Kind == ScopeCallSite && s.CallSite == dst.CallSite
	default:
		panic(fmt.Sprintf("unhandled scope kind %d", int(s.Kind)))
	}
}

// ProgramVar is the semantic description of the entity behind a BoundsKey.
// ProgramVars are created once, during registration, and are immutable.
type ProgramVar struct {
	Key   BoundsKey
	Name  string
	Scope Scope
	Kind  VarKind
	// Numeric marks integer-typed variables, the only ones eligible to
	// appear in a count or byte-count bound.
	Numeric  bool
	Const    bool
	ConstVal int64
}

func (pv *ProgramVar) String() string {
	if pv.Const {
		return fmt.Sprintf("%d", pv.ConstVal)
	}
	switch pv.Scope.Kind {
	case ScopeFunction:
		return fmt.Sprintf("%s in %s", pv.Name, pv.Scope.Function)
	case ScopeStruct:
		return fmt.Sprintf("%s.%s", pv.Scope.Struct, pv.Name)
	case ScopeCallSite:
		return fmt.Sprintf("%s@%s", pv.Name, pv.Scope.CallSite)
	default:
		return pv.Name
	}
}
