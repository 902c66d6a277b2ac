package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"converge/internal/cli"
	"converge/internal/declarative"
)

var validateFlags cli.CommandFlags

// definitionView is the validated form of a definition shown by validate.
type definitionView struct {
	Controller      string          `json:"controller" yaml:"controller"`
	Description     string          `json:"description,omitempty" yaml:"description,omitempty"`
	Primary         string          `json:"primary" yaml:"primary"`
	File            string          `json:"file" yaml:"file"`
	Dependents      []dependentView `json:"dependents" yaml:"dependents"`
	Order           []string        `json:"order" yaml:"order"`
	Levels          [][]string      `json:"levels" yaml:"levels"`
	DeletionOrder   []string        `json:"deletionOrder" yaml:"deletionOrder"`
	RequiresCleanup bool            `json:"requiresCleanup" yaml:"requiresCleanup"`
}

type dependentView struct {
	Name      string   `json:"name" yaml:"name"`
	Kind      string   `json:"kind" yaml:"kind"`
	Mode      string   `json:"mode" yaml:"mode"`
	DependsOn []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate [file|directory]",
	Short: "Validate controller definitions",
	Long: `Validates controller definitions without contacting a cluster and shows the
order in which each controller reconciles its dependents and the reverse
order in which it deletes them.

Without an argument the controllers directory of --config-path is validated.
Exits with code 2 when any definition is invalid.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	printer, err := cli.NewPrinter(&validateFlags, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	path := defaultControllersDir(validateFlags.ConfigPath)
	if len(args) == 1 {
		path = args[0]
	}
	defs, failed, err := loadDefinitions(path, len(args) == 1)
	if err != nil {
		return err
	}

	views := make([]definitionView, 0, len(defs))
	for _, def := range defs {
		view, err := viewDefinition(def)
		if err != nil {
			return fmt.Errorf("controller %s: %w", def.Name, err)
		}
		views = append(views, view)
	}

	if len(views) > 0 {
		table := newDefinitionTable()
		for _, v := range views {
			table.AppendRow(
				v.Controller,
				v.Primary,
				strconv.Itoa(len(v.Dependents)),
				cli.JoinOrNone(v.Order, ","),
				cli.JoinOrNone(v.DeletionOrder, ","),
				finalizerColumn(v.RequiresCleanup),
				v.File,
			)
		}
		if err := printer.Print(views, table); err != nil {
			return err
		}
	}

	if err := reportInvalid(cmd.ErrOrStderr(), failed); err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatWarning("No controller definitions found in "+path))
		return nil
	}
	fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatSuccess(fmt.Sprintf("%d controller definitions are valid", len(views))))
	return nil
}

func viewDefinition(def *declarative.ControllerDefinition) (definitionView, error) {
	wf, err := declarative.Workflow(def)
	if err != nil {
		return definitionView{}, err
	}
	view := definitionView{
		Controller:      def.Name,
		Description:     def.Description,
		Primary:         def.Primary.GroupVersionKind().GroupKind().String(),
		File:            def.Path(),
		Dependents:      make([]dependentView, 0, len(def.Dependents)),
		Order:           wf.Order(),
		Levels:          wf.Levels(),
		DeletionOrder:   wf.CleanupOrder(),
		RequiresCleanup: wf.RequiresCleanup(),
	}
	for _, dep := range def.Dependents {
		d, _ := wf.Definition(dep.Name)
		view.Dependents = append(view.Dependents, dependentView{
			Name:      dep.Name,
			Kind:      dep.GroupVersionKind().GroupKind().String(),
			Mode:      d.Mode().String(),
			DependsOn: dep.DependsOn,
		})
	}
	return view, nil
}

func finalizerColumn(required bool) string {
	if required {
		return "required"
	}
	return "none"
}

func init() {
	rootCmd.AddCommand(validateCmd)
	cli.RegisterCommonFlags(validateCmd, &validateFlags)
}
