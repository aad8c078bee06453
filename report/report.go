// Package report renders bounds inference results as plain text or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/c2safe/arrbounds/bounds"
)

// Entry is the result for one array pointer.
type Entry struct {
	Key      int    `json:"key"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	Bound    string `json:"bound,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// Summary counts outcomes across all entries.
type Summary struct {
	Total      int `json:"total"`
	Bounded    int `json:"bounded"`
	Unbounded  int `json:"unbounded"`
	Impossible int `json:"impossible"`
}

// Report is the full result of one analysis run.
type Report struct {
	Tool    string  `json:"tool"`
	Summary Summary `json:"summary"`
	Entries []Entry `json:"bounds"`
}

// Collect assembles the report for every in-program array pointer, in
// registration order.
func Collect(bi *bounds.Info) *Report {
	r := &Report{Tool: "arrbounds"}
	set := bi.InProgramArrPointers()
	for k := 0; set.TakeMin(&k); {
		key := bounds.BoundsKey(k)
		pv := bi.Var(key)
		e := Entry{
			Key:    int(key),
			Name:   pv.String(),
			Kind:   "array",
			Status: bi.Status(key).String(),
		}
		if bi.IsNtArrayPointer(key) {
			e.Kind = "nt_array"
		}
		r.Summary.Total++
		switch {
		case bi.HasImpossibleBounds(key):
			r.Summary.Impossible++
		default:
			if b, p, ok := bi.GetBounds(key); ok {
				e.Bound = bi.FormatBound(b)
				e.Priority = p.String()
				r.Summary.Bounded++
			} else {
				r.Summary.Unbounded++
			}
		}
		r.Entries = append(r.Entries, e)
	}
	return r
}

// WriteJSON writes the report as one indented JSON object.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes the report as an aligned table. With aligned false the
// output is plain tab-separated text, suitable for piping.
func WriteText(w io.Writer, r *Report, aligned bool) error {
	var out io.Writer = w
	var tw *tabwriter.Writer
	if aligned {
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		out = tw
	}
	fmt.Fprintf(out, "pointer\tkind\tbound\tsource\tstatus\n")
	for _, e := range r.Entries {
		b := e.Bound
		if b == "" {
			b = "-"
		}
		p := e.Priority
		if p == "" {
			p = "-"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Kind, b, p, e.Status)
	}
	fmt.Fprintf(out, "\n%d pointers: %d bounded, %d unbounded, %d impossible\n",
		r.Summary.Total, r.Summary.Bounded, r.Summary.Unbounded, r.Summary.Impossible)
	if tw != nil {
		return tw.Flush()
	}
	return nil
}
