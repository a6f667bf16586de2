package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auvlog/lcm2smat/lcmtype"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List type definitions found on the search path",
	Args:  cobra.NoArgs,
	RunE:  runTypes,
}

func runTypes(cmd *cobra.Command, args []string) error {
	reg := lcmtype.NewRegistry()
	total := 0
	for _, p := range typePaths() {
		n, err := reg.LoadPath(p)
		total += n
		if err != nil {
			return err
		}
	}
	if err := reg.Resolve(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, s := range reg.Schemas() {
		fmt.Fprintf(out, "0x%016x  %s\n", s.Fingerprint(), s.QualifiedName())
	}
	if total == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no type definitions found, set --lcmtypes or LCMPATH")
	}
	return nil
}
