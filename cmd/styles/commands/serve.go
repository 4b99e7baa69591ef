package commands

import (
	"context"

	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve tiles over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, l, err := setup(ctx)
			if err != nil {
				return err
			}
			defer l.Sync()
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				if err := a.Close(closeCtx); err != nil {
					l.Error("failed to close application", "error", err)
				}
			}()

			return a.Serve(ctx)
		},
	}
}
