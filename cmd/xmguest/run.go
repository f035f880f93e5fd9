package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mensylisir/xmguest/guest"
	"github.com/mensylisir/xmguest/runner"
)

func NewRunCommand(a *app) *cobra.Command {
	var noPTY bool
	cmd := &cobra.Command{
		Use:   "run COMMAND...",
		Short: "Run a shell command on every target.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")
			return a.forEach(cmd.Context(), func(ctx context.Context, r *runner.Runner) error {
				res, err := r.Run(ctx, command, runner.WithPTY(!noPTY && r.Settings().PTY))
				a.printResult(r, res)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&noPTY, "no-pty", false, "do not request a pseudo-terminal")
	return cmd
}

func NewSudoCommand(a *app) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "sudo COMMAND...",
		Short: "Run a shell command as another user on every target.",
		Long: "Run a shell command as another user on every target.\n" +
			"Inside a guest, commands already run as root; --as switches to another user in the container.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")
			var opts []runner.RunOption
			if user != "" {
				opts = append(opts, runner.AsUser(user))
			}
			return a.forEach(cmd.Context(), func(ctx context.Context, r *runner.Runner) error {
				res, err := r.Sudo(ctx, command, opts...)
				a.printResult(r, res)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&user, "as", "", "user to run the command as")
	return cmd
}

// label names the place a runner executes: the host, or host/guest
// inside a guest scope.
func label(r *runner.Runner) string {
	if s, ok := r.Strategy().(*guest.Strategy); ok {
		return r.HostString() + "/" + s.Target()
	}
	return r.HostString()
}

func (a *app) printResult(r *runner.Runner, res *runner.Result) {
	if res == nil {
		return
	}
	prefix := "[" + label(r) + "] "
	for _, stream := range []struct {
		name string
		text string
	}{{"out", res.Stdout}, {"err", res.Stderr}} {
		if stream.text == "" {
			continue
		}
		sc := bufio.NewScanner(strings.NewReader(stream.text))
		for sc.Scan() {
			fmt.Fprintf(a.out, "%s%s: %s\n", prefix, stream.name, sc.Text())
		}
	}
}
