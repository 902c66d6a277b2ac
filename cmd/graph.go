package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"converge/internal/declarative"
)

var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Print the dependent graph of a controller definition in DOT format",
	Long: `Prints the dependents of a controller definition as a Graphviz DOT digraph.
Edges point from a dependent to the dependents that wait for it, so the
graph reads in reconciliation order. Render it with, for example:

  converge graph controllers/widgets.yaml | dot -Tsvg > widgets.svg`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	def, err := declarative.Load(args[0])
	if err != nil {
		return err
	}
	return writeDOT(cmd.OutOrStdout(), def)
}

// writeDOT writes def's dependent graph. Nodes are emitted in reconciliation
// order so the output is stable.
func writeDOT(w io.Writer, def *declarative.ControllerDefinition) error {
	wf, err := declarative.Workflow(def)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", quoteDOT(def.Name))
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontname=\"Helvetica\"];\n")
	fmt.Fprintf(&b, "  %s [shape=ellipse, label=%s];\n",
		quoteDOT(def.Name), quoteDOT(def.Primary.Kind+"\n"+def.Name))

	specs := make(map[string]declarative.DependentDefinition, len(def.Dependents))
	for _, dep := range def.Dependents {
		specs[dep.Name] = dep
	}
	for _, name := range wf.Order() {
		d, _ := wf.Definition(name)
		spec := specs[name]
		attrs := []string{"label=" + quoteDOT(fmt.Sprintf("%s\n%s (%s)", name, spec.Kind, d.Mode()))}
		if spec.ReconcileWhen != "" {
			attrs = append(attrs, "style=dashed")
		}
		fmt.Fprintf(&b, "  %s [%s];\n", quoteDOT(nodeID(name)), strings.Join(attrs, ", "))
	}
	for _, name := range wf.Order() {
		d, _ := wf.Definition(name)
		parents := d.DependsOn()
		if len(parents) == 0 {
			fmt.Fprintf(&b, "  %s -> %s [style=dotted, arrowhead=none];\n", quoteDOT(def.Name), quoteDOT(nodeID(name)))
			continue
		}
		for _, parent := range parents {
			fmt.Fprintf(&b, "  %s -> %s;\n", quoteDOT(nodeID(parent)), quoteDOT(nodeID(name)))
		}
	}
	b.WriteString("}\n")

	_, err = io.WriteString(w, b.String())
	return err
}

// nodeID keeps dependent node IDs apart from the primary's.
func nodeID(dependent string) string {
	return "dependent/" + dependent
}

func quoteDOT(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
