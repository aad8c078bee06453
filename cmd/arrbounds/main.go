// arrbounds infers array bounds for the pointers of C programs.
//
// Usage:
//
//	arrbounds [flags] file.c...
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/c2safe/arrbounds/bounds"
	"github.com/c2safe/arrbounds/config"
	"github.com/c2safe/arrbounds/frontend"
	"github.com/c2safe/arrbounds/report"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("arrbounds: ")

	fs := flag.NewFlagSet("arrbounds", flag.ExitOnError)
	configPath := fs.String("config", "arrbounds.toml", "configuration file")
	jsonOut := fs.Bool("json", false, "emit JSON instead of text")
	dotPath := fs.String("dot", "", "write the variable dependency graph to this file in Graphviz format")
	stats := fs.Bool("stats", false, "also print per-heuristic statistics")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: arrbounds [flags] file.c...\n")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadIfExists(*configPath)
	if err != nil {
		log.Fatalf("loading config: %s", err)
	}

	bi := bounds.NewInfo()
	fe := frontend.New(cfg, bi)
	for _, path := range fs.Args() {
		if err := fe.ProcessFile(path); err != nil {
			log.Fatal(err)
		}
	}
	fe.Finish()
	bi.PerformFlowAnalysis()

	if *dotPath != "" {
		f, err := os.Create(*dotPath)
		if err != nil {
			log.Fatal(err)
		}
		if err := bi.DumpAVarGraph(f); err != nil {
			log.Fatal(err)
		}
		if err := f.Close(); err != nil {
			log.Fatal(err)
		}
	}

	r := report.Collect(bi)
	if *jsonOut {
		if err := report.WriteJSON(os.Stdout, r); err != nil {
			log.Fatal(err)
		}
	} else {
		aligned := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
		if err := report.WriteText(os.Stdout, r, aligned); err != nil {
			log.Fatal(err)
		}
	}
	if *stats {
		if err := bi.PrintStats(os.Stdout, *jsonOut); err != nil {
			log.Fatal(err)
		}
	}
}
