package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mensylisir/xmguest/guest"
	"github.com/mensylisir/xmguest/runner"
)

func NewResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print the numeric CTID of each guest.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.destinations() == 0 {
				return errors.New("no targets to resolve")
			}
			return a.forEach(cmd.Context(), func(ctx context.Context, r *runner.Runner) error {
				s, ok := r.Strategy().(*guest.Strategy)
				if !ok {
					return errors.Errorf("no guest given for %s: use --guest or configure guests", r.HostString())
				}
				ctid, err := guest.DefaultResolver.Resolve(ctx, r.Host(), s.Target())
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s\t%s\t%s\n", r.HostString(), s.Target(), ctid)
				return nil
			})
		},
	}
}
