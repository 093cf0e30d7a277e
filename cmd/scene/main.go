// Package main provides the scene CLI for checking scene files offline.
//
// The CLI reads a scene YAML document from stdin and writes its result to
// stdout. No service is contacted and no credentials are needed.
//
// Usage:
//
//	# Validate names, types and connections
//	cat scene.yaml | watsonkit-scene validate
//
//	# Render the scene graph for Graphviz
//	cat scene.yaml | watsonkit-scene dot | dot -Tpng > scene.png
//
//	# List the widget types the daemon understands
//	watsonkit-scene types
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/widgets"
)

const (
	cmdValidate = "validate"
	cmdDot      = "dot"
	cmdTypes    = "types"
	cmdVersion  = "version"
)

// Version information
const (
	Version   = "1.0.0"
	BuildTime = "2026-10-19"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case cmdVersion:
		return writeJSON(stdout, stderr, map[string]string{
			"version":    Version,
			"build_time": BuildTime,
		})
	case cmdTypes:
		return writeJSON(stdout, stderr, map[string]any{"types": knownTypes()})
	case cmdValidate:
		return handleValidate(stdin, stdout, stderr)
	case cmdDot:
		return handleDot(stdin, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: watsonkit-scene <command>

Commands:
  validate  Read scene YAML from stdin and report problems as JSON
  dot       Read scene YAML from stdin and write a Graphviz graph
  types     List the known widget types
  version   Print version information

Examples:
  cat scene.yaml | watsonkit-scene validate
  cat scene.yaml | watsonkit-scene dot | dot -Tsvg > scene.svg`)
}

func knownTypes() []string {
	return (&widgets.Factory{}).Types()
}

// handleValidate reports whether the scene is usable.
func handleValidate(stdin io.Reader, stdout, stderr io.Writer) int {
	scene, err := config.LoadScene(stdin)
	if err != nil {
		writeError(stdout, stderr, "parse_error", err.Error(), nil)
		return 1
	}
	if err := scene.Validate(knownTypes()...); err != nil {
		var problems []string
		if se, ok := err.(*config.SceneError); ok {
			problems = se.Problems
		}
		writeError(stdout, stderr, "validation_error", err.Error(), problems)
		return 1
	}
	return writeJSON(stdout, stderr, map[string]any{
		"valid":       true,
		"name":        scene.Name,
		"widgets":     len(scene.Widgets),
		"connections": len(scene.Connections),
	})
}

// handleDot renders the scene as a Graphviz digraph.
func handleDot(stdin io.Reader, stdout, stderr io.Writer) int {
	scene, err := config.LoadScene(stdin)
	if err != nil {
		writeError(stdout, stderr, "parse_error", err.Error(), nil)
		return 1
	}
	if err := scene.Validate(knownTypes()...); err != nil {
		writeError(stdout, stderr, "validation_error", err.Error(), nil)
		return 1
	}

	name := scene.Name
	if name == "" {
		name = "scene"
	}
	fmt.Fprintf(stdout, "digraph %q {\n", name)
	fmt.Fprintf(stdout, "  graph [rankdir=LR]\n")
	fmt.Fprintf(stdout, "  node [shape=\"box\" style=\"rounded,filled\" fillcolor=\"#99ddc8\"]\n")
	for _, w := range scene.Widgets {
		fmt.Fprintf(stdout, "  %q [label=%q]\n", w.Name, w.Name+"\n"+w.Type)
	}
	for _, l := range scene.Connections {
		from, to, _ := l.Endpoints()
		label := from.Port + " → " + to.Port
		if to.Port == "" {
			label = from.Port + " → *"
		}
		fmt.Fprintf(stdout, "  %q -> %q [label=%q]\n", from.Widget, to.Widget, label)
	}
	fmt.Fprintln(stdout, "}")
	return 0
}

// writeJSON writes a JSON object to stdout.
func writeJSON(stdout, stderr io.Writer, v any) int {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(stderr, "Error encoding JSON: %s\n", err.Error())
		return 1
	}
	return 0
}

// writeError writes an error response to stdout.
func writeError(stdout, stderr io.Writer, code, message string, problems []string) {
	result := map[string]any{
		"error":   true,
		"code":    code,
		"message": message,
	}
	if len(problems) > 0 {
		result["problems"] = problems
	}
	writeJSON(stdout, stderr, result)
}
