package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/disfluency"
)

func newCounterCommand(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "counter",
		Short: "Ah-Counter client for a running coach server",
		Long: `Read or bump the filler-word count on a coach server.

Examples:
  coach counter get
  coach counter bump --url http://192.168.1.20:5000`,
	}
	c.PersistentFlags().String("url", "http://127.0.0.1:5000", "coach server base URL")
	c.PersistentFlags().Duration("timeout", disfluency.DefaultClientTimeout, "request timeout")

	client := func() *disfluency.Client {
		return disfluency.NewClient(a.cfg.Counter.URL, a.cfg.Counter.Timeout)
	}

	c.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := client().Get(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "bump",
		Short: "Record one filler word and print the new count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := client().Bump(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	})

	return c
}
