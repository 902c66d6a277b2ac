package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"converge/internal/cli"
	"converge/internal/declarative"
)

var controllersFlags cli.CommandFlags

// controllerEntry is one installed definition as listed by "controllers list".
type controllerEntry struct {
	Name       string `json:"name" yaml:"name"`
	Primary    string `json:"primary,omitempty" yaml:"primary,omitempty"`
	Dependents int    `json:"dependents" yaml:"dependents"`
	Valid      bool   `json:"valid" yaml:"valid"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

var controllersCmd = &cobra.Command{
	Use:     "controllers",
	Aliases: []string{"controller", "ctrl"},
	Short:   "Manage installed controller definitions",
	Long: `Lists, installs and removes the controller definitions in the controllers
directory of --config-path. A running operator picks up changes on restart.`,
}

var controllersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed controller definitions",
	Args:  cobra.NoArgs,
	RunE:  runControllersList,
}

var controllersInstallCmd = &cobra.Command{
	Use:   "install <file>",
	Short: "Validate a controller definition and install it",
	Args:  cobra.ExactArgs(1),
	RunE:  runControllersInstall,
}

var controllersRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove an installed controller definition",
	Args:    cobra.ExactArgs(1),
	RunE:    runControllersRemove,
}

func controllersStore() *declarative.Store {
	return declarative.NewStore(defaultControllersDir(controllersFlags.ConfigPath))
}

func runControllersList(cmd *cobra.Command, args []string) error {
	printer, err := cli.NewPrinter(&controllersFlags, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	store := controllersStore()
	stored, err := store.List()
	if err != nil {
		return err
	}

	entries := make([]controllerEntry, 0, len(stored))
	for _, sd := range stored {
		entry := controllerEntry{Name: sd.Name()}
		if def := sd.Definition; def != nil {
			entry.Primary = def.Primary.GroupVersionKind().GroupKind().String()
			entry.Dependents = len(def.Dependents)
			entry.Valid = true
		} else {
			entry.Error = sd.Err.Error()
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No controller definitions installed in "+store.Dir())
		return nil
	}

	table := cli.NewTable(
		cli.Column{Name: "Name"},
		cli.Column{Name: "Primary"},
		cli.Column{Name: "Dependents"},
		cli.Column{Name: "Valid"},
		cli.Column{Name: "Error", Wide: true},
	)
	for _, e := range entries {
		table.AppendRow(e.Name, e.Primary, strconv.Itoa(e.Dependents), strconv.FormatBool(e.Valid), cli.TruncateMessage(e.Error, cli.MessageMaxLen))
	}
	return printer.Print(entries, table)
}

func runControllersInstall(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", args[0], err)
	}
	def, err := controllersStore().Install(data, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Installed controller %s", def.Name)))
	return nil
}

func runControllersRemove(cmd *cobra.Command, args []string) error {
	if err := controllersStore().Remove(args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Removed controller %s", args[0])))
	return nil
}

func init() {
	rootCmd.AddCommand(controllersCmd)
	controllersCmd.AddCommand(controllersListCmd, controllersInstallCmd, controllersRemoveCmd)
	cli.RegisterCommonFlags(controllersCmd, &controllersFlags)
}
