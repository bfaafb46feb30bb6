package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/anri-helpdesk/helpdesk/internal/repository"
)

var bansCmd = &cobra.Command{
	Use:   "bans",
	Short: "Inspect and lift temporary IP bans",
}

var bansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List IPs with an attempt counter inside the ban window",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, cfg, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		sec := cfg.Security

		now := time.Now()
		attempts, err := repository.NewLoginRepository(db).ListActive(cmd.Context(), now.Add(-sec.BanDuration()))
		if err != nil {
			return err
		}
		if len(attempts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No active bans")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "IP\tATTEMPTS\tLAST ATTEMPT\tBANNED")
		for _, a := range attempts {
			banned := "no"
			if a.Number >= sec.AttemptLimit {
				banned = "yes"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", a.IP, a.Number, a.LastAttempt.Format(time.DateTime), banned)
		}
		return w.Flush()
	},
}

var bansClearCmd = &cobra.Command{
	Use:   "clear [ip]",
	Short: "Remove the attempt counter of one IP, or of every IP",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ip string
		if len(args) == 1 {
			ip = args[0]
		}

		db, _, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := repository.NewLoginRepository(db).Clear(cmd.Context(), ip)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d ban record(s)\n", n)
		return nil
	},
}

func init() {
	bansCmd.AddCommand(bansListCmd, bansClearCmd)
}
