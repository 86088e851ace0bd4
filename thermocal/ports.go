package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/itohio/thermocal/pkg/link"
)

func NewPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Long:  "List serial ports with their USB vendor and product IDs, to fill bath and sensor IDs in the config file.",
		RunE: func(_ *cobra.Command, _ []string) error {
			ports, err := link.Ports()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Println("No serial ports found")
				return nil
			}

			for _, p := range ports {
				if !p.IsUSB {
					fmt.Println(p.Name)
					continue
				}
				fmt.Printf("%s %s:%s %s %s\n",
					p.Name,
					color.CyanString(p.VID),
					color.CyanString(p.PID),
					p.SerialNumber,
					p.Product,
				)
			}
			return nil
		},
	}
}
