// Package cli implements clinicctl, the operator tool for one-off maintenance
// on the clinic backend.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/functions"
	"github.com/hackgods/clinic-functions/internal/identity"
	redisclient "github.com/hackgods/clinic-functions/internal/redis"
)

// Deps are the backend handles the commands work on.
type Deps struct {
	Store     *docstore.Client
	Accounts  *identity.Service
	Functions *functions.Functions
	Locker    redisclient.Locker
	Log       zerolog.Logger
	Close     func()
}

// Opener connects the backend. Commands that only print call it never.
type Opener func(ctx context.Context) (*Deps, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
	open   Opener
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "clinicctl",
		Short: "Maintenance commands for the clinic backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewPurgeProviderRequestsCommand(opts))
	cmd.AddCommand(NewSampleRequestCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))
	cmd.AddCommand(NewRunJobCommand(opts))
	cmd.AddCommand(NewHTTPFunctionCommand(opts))
	cmd.AddCommand(NewDeleteUserCommand(opts))

	return cmd
}

// withDeps opens the backend for the duration of fn.
func (o *RootOptions) withDeps(ctx context.Context, fn func(d *Deps) error) error {
	d, err := o.open(ctx)
	if err != nil {
		return err
	}
	if d.Close != nil {
		defer d.Close()
	}
	return fn(d)
}

// print writes v as indented JSON or, in text mode, as the given line.
func (o *RootOptions) print(w io.Writer, v any, text string) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
