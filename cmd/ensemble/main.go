// Command ensemble fits and evaluates declaratively defined ensemble
// graphs on JSON datasets.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
)

// Version information set by ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	var (
		showVersion  = flag.Bool("version", false, "Show version information")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
		vShort       = flag.Bool("v", false, "Enable verbose logging (short)")
		featuresPath = flag.String("features-path", "$.features", "JSONPath to the feature matrix (or list of matrices) in a dataset")
		labelsPath   = flag.String("labels-path", "$.labels", "JSONPath to the label vector (or list of vectors) in a dataset")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ensemble - stacked model graphs from declarative definitions\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  ensemble [flags] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run <graph.yaml> <train.json> [test.json]  Fit the graph and print predictions\n")
		fmt.Fprintf(os.Stderr, "  validate <graph.yaml>                      Check a definition without running it\n")
		fmt.Fprintf(os.Stderr, "  version                                    Show version information\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ensemble run stack.yaml train.json\n")
		fmt.Fprintf(os.Stderr, "  ensemble run stack.yaml train.json test.json --verbose\n")
		fmt.Fprintf(os.Stderr, "  ensemble validate stack.yaml\n")
	}

	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	switch args[0] {
	case "version":
		printVersion()
	case "run":
		if len(args) < 3 {
			fmt.Fprintf(os.Stderr, "Error: run requires a graph definition and a training dataset\n")
			fmt.Fprintf(os.Stderr, "Usage: ensemble run <graph.yaml> <train.json> [test.json]\n")
			os.Exit(1)
		}
		config := &RunConfig{
			GraphPath:    args[1],
			TrainPath:    args[2],
			Verbose:      *verbose || *vShort,
			FeaturesPath: *featuresPath,
			LabelsPath:   *labelsPath,
		}
		if len(args) > 3 {
			config.TestPath = args[3]
		}
		if err := runGraph(config); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "validate":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Error: validate requires a graph definition\n")
			fmt.Fprintf(os.Stderr, "Usage: ensemble validate <graph.yaml>\n")
			os.Exit(1)
		}
		if err := validateGraph(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Graph definition is valid")
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("ensemble version %s\n", version)
	if version != "dev" {
		fmt.Printf("  commit:     %s\n", commit)
		fmt.Printf("  built:      %s\n", buildDate)
	}
	fmt.Printf("  go version: %s\n", runtime.Version())
}
