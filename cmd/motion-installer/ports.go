package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chaz8081/motion-installer/internal/serialport"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and mark likely BLE dongles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serialport.List()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(w, "No serial ports found")
				return nil
			}
			for _, p := range ports {
				mark := "  "
				if p.LooksLikeDongle() {
					mark = okStyle.Render("* ")
				}
				fmt.Fprintf(w, "%s%s\n", mark, p)
			}
			fmt.Fprintln(w, labelStyle.Render("* BLE dongle"))
			return nil
		},
	}
}
