package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/unistore/internal/application/handlers"
)

func newActivityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Log and list entity activities",
	}

	cmd.AddCommand(newActivityLogCmd())
	cmd.AddCommand(newActivityListCmd())

	return cmd
}

func newActivityLogCmd() *cobra.Command {
	var in handlers.LogInput

	cmd := &cobra.Command{
		Use:   "log <entity-id> <type> <content>",
		Short: "Append an activity to an entity",
		Long: `Appends an immutable activity record to an entity.

Examples:
  unistore -w acme activity log <id> call "Discussed renewal" --source crm
  unistore -w acme activity log <id> email "Sent proposal" --participant <contact-id>`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.EntityID, in.Type, in.Content = args[0], args[1], args[2]
			return withDeps(cmd.Context(), func(d *Deps) error {
				a, err := d.Activity.HandleLog(cmd.Context(), d.Workspace, in)
				if err != nil {
					return fmt.Errorf("logging activity: %w", err)
				}
				return printResult(a, func(w io.Writer) {
					fmt.Fprintf(w, "Logged activity: %s\n", a.ID)
				})
			})
		},
	}

	cmd.Flags().StringVar(&in.Source, "source", "cli", "Module that produced the activity")
	cmd.Flags().StringArrayVar(&in.Participants, "participant", nil, "Participant entity ID (repeatable)")
	cmd.Flags().StringVar(&in.At, "at", "", "Timestamp in RFC 3339 (default: now)")

	return cmd
}

func newActivityListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list [entity-id]",
		Short: "List activities, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entityID string
			if len(args) == 1 {
				entityID = args[0]
			}
			return withDeps(cmd.Context(), func(d *Deps) error {
				list, err := d.Activity.HandleList(cmd.Context(), d.Workspace, entityID, limit)
				if err != nil {
					return fmt.Errorf("listing activities: %w", err)
				}
				return printResult(list, func(w io.Writer) {
					if len(list) == 0 {
						fmt.Fprintln(w, "No activities found.")
						return
					}
					for _, a := range list {
						fmt.Fprintf(w, "%s  %-10s %s  %s\n",
							a.Timestamp.Format("2006-01-02 15:04:05"), a.ActivityType, a.EntityID, truncate(a.Content, 60))
						if len(a.Participants) > 0 {
							fmt.Fprintf(w, "    with %s\n", strings.Join(a.Participants, ", "))
						}
					}
				})
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultActivityLimit, "Maximum number of activities")

	return cmd
}
