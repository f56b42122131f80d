package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var providersAll bool

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List LLM backends",
	Long: `List the registered LLM backends with their models.

Examples:
  flowgate providers         # configured backends only
  flowgate providers --all   # every registered backend`,
	RunE: runProviders,
}

func init() {
	providersCmd.Flags().BoolVarP(&providersAll, "all", "a", false, "Include unconfigured backends")
}

func runProviders(cmd *cobra.Command, args []string) error {
	rt, err := setup(nil)
	if err != nil {
		return err
	}

	descs := rt.registry.ListAvailable()
	if providersAll {
		descs = rt.registry.Descriptors()
	}
	def, _ := rt.registry.ResolveDefault()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEFAULT MODEL\tCONFIGURED\tMODELS\t")
	for _, d := range descs {
		id := d.ID
		if id == def {
			id += " *"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t\n", id, d.DisplayName, d.DefaultModel, d.Configured, strings.Join(d.Models, ", "))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(descs) == 0 {
		fmt.Fprintln(os.Stderr, "no provider configured; set ANTHROPIC_API_KEY, OPENAI_API_KEY or OLLAMA_BASE_URL")
	}
	return nil
}
