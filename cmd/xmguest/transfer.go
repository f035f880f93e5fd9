package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mensylisir/xmguest/runner"
)

func NewPutCommand(a *app) *cobra.Command {
	var (
		mode    string
		useSudo bool
	)
	cmd := &cobra.Command{
		Use:   "put LOCAL REMOTE",
		Short: "Upload a file to every target.",
		Long: "Upload a file to every target.\n" +
			"Inside a guest, REMOTE is a path in the container and the upload always goes through root.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileMode, err := parseMode(mode)
			if err != nil {
				return err
			}
			opts := runner.PutOptions{UseSudo: useSudo, Mode: fileMode}
			return a.forEach(cmd.Context(), func(ctx context.Context, r *runner.Runner) error {
				if err := r.Put(ctx, args[0], args[1], opts); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "[%s] put: %s -> %s\n", label(r), args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "octal mode for the remote file, e.g. 0644")
	cmd.Flags().BoolVar(&useSudo, "sudo", false, "write the remote file as root")
	return cmd
}

func NewGetCommand(a *app) *cobra.Command {
	var useSudo bool
	cmd := &cobra.Command{
		Use:   "get REMOTE LOCAL",
		Short: "Download a file from every target.",
		Long: "Download a file from every target.\n" +
			"With more than one source, LOCAL is suffixed with the host and guest name.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := runner.GetOptions{UseSudo: useSudo}
			multi := a.destinations() > 1
			return a.forEach(cmd.Context(), func(ctx context.Context, r *runner.Runner) error {
				local := args[1]
				if multi {
					local = localPathFor(local, label(r))
				}
				if err := r.Get(ctx, args[0], local, opts); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "[%s] get: %s -> %s\n", label(r), args[0], local)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&useSudo, "sudo", false, "read the remote file as root")
	return cmd
}

// destinations counts the places an action will run.
func (a *app) destinations() int {
	n := 0
	for _, t := range a.targets {
		if len(t.guests) == 0 {
			n++
			continue
		}
		n += len(t.guests)
	}
	return n
}

func localPathFor(local, label string) string {
	return local + "." + strings.NewReplacer("/", "_", ":", "_").Replace(label)
}
