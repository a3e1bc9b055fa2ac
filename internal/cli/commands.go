package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-functions/internal/docstore"
	"github.com/hackgods/clinic-functions/internal/records"
	"github.com/hackgods/clinic-functions/internal/scheduler"
)

type PurgeResult struct {
	Found   int  `json:"found"`
	Deleted int  `json:"deleted"`
	DryRun  bool `json:"dryRun"`
}

// NewPurgeProviderRequestsCommand deletes every provider request, expired or
// not. Without --yes it only counts them.
func NewPurgeProviderRequestsCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge-provider-requests",
		Short: "Delete every provider request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDeps(cmd.Context(), func(d *Deps) error {
				docs, err := d.Store.Find(cmd.Context(), docstore.From(records.ProviderRequests))
				if err != nil {
					return fmt.Errorf("load provider requests: %w", err)
				}

				res := PurgeResult{Found: len(docs), DryRun: !yes}
				if yes {
					res.Deleted, err = d.Store.DeleteDocs(cmd.Context(), docs)
					if err != nil {
						return fmt.Errorf("purge stopped after %d documents: %w", res.Deleted, err)
					}
					d.Log.Info().Int("deleted", res.Deleted).Msg("provider requests purged")
				}

				text := fmt.Sprintf("Deleted %d/%d provider requests", res.Deleted, res.Found)
				if res.DryRun {
					text = fmt.Sprintf("Found %d provider requests; re-run with --yes to delete them", res.Found)
				}
				return opts.print(cmd.OutOrStdout(), res, text)
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "actually delete")
	return cmd
}

// sampleRequest is a complete appointment request as the mobile app writes it.
func sampleRequest(patient, provider string, now time.Time) map[string]any {
	return map[string]any{
		"idpro":            provider,
		"idpat":            patient,
		"patientName":      "John Doe",
		"patientPhone":     "+1234567890",
		"service":          "General Consultation",
		"prix":             100,
		"serviceFee":       0,
		"paymentMethod":    "Cash",
		"type":             "scheduled",
		"appointmentDate":  now.AddDate(0, 0, 1).Format(time.DateOnly),
		"appointmentTime":  "14:30",
		"patientLocation":  nil,
		"providerLocation": nil,
		"patientAddress":   "123 Test Street",
		"notes":            "Test appointment",
		"status":           records.StatusPending,
		"etat":             "en_attente",
		"createdAt":        now.UTC(),
		"updatedAt":        now.UTC(),
	}
}

func NewSampleRequestCommand(opts *RootOptions) *cobra.Command {
	var patient, provider string
	var create bool

	cmd := &cobra.Command{
		Use:   "sample-request",
		Short: "Print, or create, a test appointment request",
		Long: `Print a test appointment request between a patient and a provider.

With --create the request is written to appointment_requests, which schedules
its expiration like any request filed from the app.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := sampleRequest(patient, provider, time.Now())
			if !create {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(req)
			}

			return opts.withDeps(cmd.Context(), func(d *Deps) error {
				id, err := d.Store.Add(cmd.Context(), records.AppointmentRequests, req)
				if err != nil {
					return fmt.Errorf("create appointment request: %w", err)
				}
				return opts.print(cmd.OutOrStdout(), map[string]string{"id": id}, "Created appointment request "+id)
			})
		},
	}

	cmd.Flags().StringVar(&patient, "patient", "REPLACE_WITH_REAL_PATIENT_ID", "patient uid (idpat)")
	cmd.Flags().StringVar(&provider, "provider", "REPLACE_WITH_REAL_PROVIDER_ID", "provider uid (idpro)")
	cmd.Flags().BoolVar(&create, "create", false, "write the request instead of printing it")
	return cmd
}

type JobInfo struct {
	Name     string `json:"name"`
	Interval string `json:"interval"`
}

func NewJobsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the timer jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDeps(cmd.Context(), func(d *Deps) error {
				var infos []JobInfo
				var lines []string
				for _, job := range d.Functions.Jobs() {
					infos = append(infos, JobInfo{Name: job.Name, Interval: job.Interval.String()})
					lines = append(lines, fmt.Sprintf("%-36s every %s", job.Name, job.Interval))
				}
				return opts.print(cmd.OutOrStdout(), infos, strings.Join(lines, "\n"))
			})
		},
	}
}

// NewRunJobCommand runs one tick of a timer job under the same lock the timer
// worker takes, so it never overlaps a scheduled tick.
func NewRunJobCommand(opts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run-job <name>",
		Short: "Run a timer job once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDeps(cmd.Context(), func(d *Deps) error {
				jobs := d.Functions.Jobs()
				idx := slices.IndexFunc(jobs, func(j scheduler.Job) bool { return j.Name == args[0] })
				if idx < 0 {
					return fmt.Errorf("unknown job %q", args[0])
				}

				sched := scheduler.New(d.Locker, timeout, d.Log)
				sched.Add(jobs[idx])
				if err := sched.Trigger(cmd.Context(), args[0]); err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), map[string]string{"job": args[0]}, "Ran "+args[0])
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "budget for the run")
	return cmd
}

func NewHTTPFunctionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "http-function <name>",
		Short: "Invoke an HTTP function such as migrateProviderRequestsExpireAt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDeps(cmd.Context(), func(d *Deps) error {
				fn, ok := d.Functions.HTTPFunctions()[args[0]]
				if !ok {
					return fmt.Errorf("unknown http function %q", args[0])
				}
				res, err := fn(cmd.Context())
				if err != nil {
					return err
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			})
		},
	}
}

// NewDeleteUserCommand deletes an auth account. The account reaper then
// removes the user's documents.
func NewDeleteUserCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user <uid>",
		Short: "Delete an auth account and, through the reaper, its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDeps(cmd.Context(), func(d *Deps) error {
				if err := d.Accounts.DeleteUser(cmd.Context(), args[0]); err != nil {
					return err
				}
				d.Log.Info().Str("uid", args[0]).Msg("auth account deleted")
				return opts.print(cmd.OutOrStdout(), map[string]string{"deleted": args[0]}, "Deleted auth account "+args[0])
			})
		},
	}
}
