package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chaz8081/motion-installer/internal/motion"
)

func newEncodeCmd() *cobra.Command {
	var wireOnly bool

	cmd := &cobra.Command{
		Use:   "encode <file>...",
		Short: "Print the wire command for each motion program",
		Long: `Encode motion program files without sending them. For every program the
slot, name, byte size and wire command are printed, followed by the
bracketed diagnostic form that splits the command into its fields.`,
		Example: `  motion-installer encode wave.mfx
  motion-installer encode --wire bow.json > bow.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmds, err := loadCommands(cmd.ErrOrStderr(), args)
			if err != nil {
				return err
			}
			printCommands(cmd.OutOrStdout(), cmds, wireOnly)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wireOnly, "wire", false, "print only the wire commands, one per line")
	return cmd
}

// loadCommands reads and encodes every program in files, in order. Files
// and programs that fail are reported to w and skipped. It fails only when
// nothing could be encoded.
func loadCommands(w io.Writer, files []string) ([]motion.Command, error) {
	var (
		programs []motion.Program
		errs     []error
	)
	for _, f := range files {
		ps, err := motion.LoadFile(f)
		if err != nil {
			errs = append(errs, err)
		}
		programs = append(programs, ps...)
	}
	cmds, err := motion.EncodeAll(programs)
	if err != nil {
		errs = append(errs, err)
	}

	if len(cmds) == 0 {
		if len(errs) == 0 {
			return nil, errors.New("no motion programs found")
		}
		return nil, fmt.Errorf("no motion programs loaded: %w", errors.Join(errs...))
	}
	for _, err := range errs {
		reportSkipped(w, err)
	}
	return cmds, nil
}

// reportSkipped prints one line per failure, splitting joined errors.
func reportSkipped(w io.Writer, err error) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			reportSkipped(w, e)
		}
		return
	}
	fmt.Fprintln(w, errStyle.Render("skipped: "+err.Error()))
}

func printCommands(w io.Writer, cmds []motion.Command, wireOnly bool) {
	for _, c := range cmds {
		if wireOnly {
			fmt.Fprintln(w, string(c.Wire))
			continue
		}
		fmt.Fprintf(w, "%s %s\n", titleStyle.Render(fmt.Sprintf("[%02d] %s", c.Slot, c.Name)), labelStyle.Render(fmt.Sprintf("(%d bytes)", c.Len())))
		fmt.Fprintln(w, string(c.Wire))
		fmt.Fprintln(w, labelStyle.Render(c.Display))
		fmt.Fprintln(w)
	}
}
