package widget

import (
	"fmt"
	"io"
	"sort"
)

// Edge is one output→input connection in the container graph.
type Edge struct {
	From     string `json:"from" yaml:"from"`
	Output   string `json:"output" yaml:"output"`
	To       string `json:"to" yaml:"to"`
	Input    string `json:"input,omitempty" yaml:"input,omitempty"`
	DataType string `json:"data_type" yaml:"data_type"`
	Resolved bool   `json:"resolved" yaml:"resolved"`
}

// PortInfo describes a port for introspection.
type PortInfo struct {
	Name      string   `json:"name"`
	DataType  string   `json:"data_type"`
	Exclusive bool     `json:"exclusive,omitempty"`
	Sources   []string `json:"sources,omitempty"`
}

// WidgetInfo describes a widget and its ports.
type WidgetInfo struct {
	Name    string     `json:"name"`
	State   string     `json:"state"`
	Inputs  []PortInfo `json:"inputs"`
	Outputs []PortInfo `json:"outputs"`
}

// Describe returns the ports of w.
func Describe(w Widget) WidgetInfo {
	inputs, outputs := w.Inputs(), w.Outputs()
	info := WidgetInfo{
		Name:    w.WidgetName(),
		State:   StateUninitialized.String(),
		Inputs:  []PortInfo{},
		Outputs: []PortInfo{},
	}
	if s, ok := w.(interface{ State() State }); ok {
		info.State = s.State().String()
	}
	for _, in := range inputs {
		p := PortInfo{Name: in.Name(), DataType: in.DataTypeName(), Exclusive: in.Exclusive()}
		if src, ok := in.(interface{ Sources() []string }); ok && len(src.Sources()) > 0 {
			p.Sources = src.Sources()
		}
		info.Inputs = append(info.Inputs, p)
	}
	for _, out := range outputs {
		info.Outputs = append(info.Outputs, PortInfo{Name: out.Name(), DataType: out.DataTypeName()})
	}
	return info
}

// Graph returns every connection, ordered by source widget registration.
func (c *Container) Graph() []Edge {
	var edges []Edge
	for _, w := range c.Widgets() {
		for _, out := range w.Outputs() {
			for _, conn := range out.Connections() {
				edges = append(edges, Edge{
					From:     w.WidgetName(),
					Output:   out.Name(),
					To:       conn.Target,
					Input:    conn.Input,
					DataType: conn.DataType,
					Resolved: conn.Resolved,
				})
			}
		}
	}
	return edges
}

// WriteDot renders the container graph in Graphviz dot format.
//
//	dot -Tpng graph.dot > graph.png
func (c *Container) WriteDot(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "digraph widgets {\n"); err != nil {
		return err
	}
	fmt.Fprintf(w, "  graph [rankdir=LR,nodesep=0.3,ranksep=0.6]\n")
	fmt.Fprintf(w, "  node [shape=\"record\" style=\"rounded,filled\" fillcolor=\"#99ddc8\"]\n")
	fmt.Fprintf(w, "  edge [fontsize=\"10\"]\n")

	for _, wd := range c.Widgets() {
		info := Describe(wd)
		ins := make([]string, 0, len(info.Inputs))
		for _, p := range info.Inputs {
			ins = append(ins, p.Name)
		}
		outs := make([]string, 0, len(info.Outputs))
		for _, p := range info.Outputs {
			outs = append(outs, p.Name)
		}
		sort.Strings(ins)
		sort.Strings(outs)
		fmt.Fprintf(w, "  %q [label=\"{%s|{in: %s|out: %s}}\"]\n",
			info.Name, info.Name, joinPorts(ins), joinPorts(outs))
	}

	for _, e := range c.Graph() {
		style := "dashed"
		if e.Resolved {
			style = "solid"
		}
		label := e.Output + " → " + e.Input
		if e.Input == "" {
			label = e.Output + " → *"
		}
		fmt.Fprintf(w, "  %q -> %q [label=%q,style=%s,tooltip=%q]\n",
			e.From, e.To, label, style, e.DataType)
	}

	_, err := fmt.Fprintf(w, "}\n")
	return err
}

func joinPorts(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += "\\n" + n
	}
	return out
}
