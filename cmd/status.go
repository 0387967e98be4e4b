package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/litpipe/internal/checkpoint"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the checkpoint state of the working directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ckpt, err := checkpoint.New(cfg.WorkDir)
		if err != nil {
			return err
		}

		st, err := ckpt.Load()
		if err != nil {
			return err
		}
		if st == nil {
			fmt.Fprintln(os.Stderr, "No checkpoint found.")
			return nil
		}

		fmt.Printf("Run:     %s\n", st.RunID)
		fmt.Printf("Status:  %s\n", st.Status)
		if st.Cancelled {
			fmt.Println("Cancelled: yes")
		}
		fmt.Printf("Updated: %s\n\n", st.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

		names := make([]string, 0, len(st.Phases))
		for name := range st.Phases {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "PHASE\tSTATUS\tARTIFACT\tERROR")
		for _, name := range names {
			ps := st.Phases[name]
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, ps.Status, ps.Artifact, ps.Error)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
