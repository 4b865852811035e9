package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"browserq/internal/domain"
	"browserq/internal/usecase"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func jobsCmd(opts *options) *cobra.Command {
	var command = &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage stored jobs",
	}
	command.AddCommand(jobsListCmd(opts), jobsGetCmd(opts), jobsDeleteCmd(opts))
	return command
}

func jobsListCmd(opts *options) *cobra.Command {
	var output string
	var command = &cobra.Command{
		Use:   "list",
		Short: "List all jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			all, err := usecase.NewJobs(store).List(cmd.Context())
			if err != nil {
				return err
			}
			sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt.Before(all[k].CreatedAt) })
			if output == "table" {
				return printTable(cmd.OutOrStdout(), all)
			}
			if all == nil {
				all = []domain.Job{}
			}
			return printJobs(cmd.OutOrStdout(), output, all)
		},
	}
	command.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	return command
}

func jobsGetCmd(opts *options) *cobra.Command {
	var output string
	var command = &cobra.Command{
		Use:   "get <id>",
		Short: "Print one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			j, err := usecase.NewJobs(store).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJobs(cmd.OutOrStdout(), output, j)
		},
	}
	command.Flags().StringVarP(&output, "output", "o", "json", "Output format: json or yaml")
	return command
}

func jobsDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := usecase.NewJobs(store).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func printJobs(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printTable(w io.Writer, all []domain.Job) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tTIMEOUT\tTASK")
	for _, j := range all {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%ds\t%s\n", shortID(j.ID), j.Status, j.CreatedAt.Format(time.RFC3339), j.Timeout, oneLine(j.Task, 60))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func oneLine(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\r' || c == '\t' {
			r[i] = ' '
		}
	}
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return string(r)
}
