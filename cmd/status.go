package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/visawatch/internal/appointment"
	"github.com/example/visawatch/internal/statefile"
)

func newStatusCmd() *cobra.Command {
	var stateFile string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the persisted state file summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := statefile.Open(stateFile, "")
			if err != nil {
				return err
			}
			if d, ok := store.CurrentBooking(); ok {
				fmt.Printf("current booking:   %s\n", d.Format(appointment.DateLayout))
			} else {
				fmt.Println("current booking:   none recorded")
			}
			if loc := store.SelectedLocation(); loc != "" {
				fmt.Printf("selected location: %s\n", loc)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stateFile, "state-file", "visawatch_state.json", "path to the state file")
	return cmd
}
