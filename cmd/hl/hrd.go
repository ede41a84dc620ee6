package main

import (
	"context"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"hireline/internal/app"
	"hireline/internal/domain"
	"hireline/internal/engine"
)

func hrdCmd() *cobra.Command {
	h := &cobra.Command{Use: "hrd", Short: "HRD approval workflow"}
	h.AddCommand(&cobra.Command{
		Use:   "submit <candidate-id>",
		Short: "Send a reviewed onboarding to HRD",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				c, err := rt.Engine.SubmitForHRD(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c, func() { renderCandidates([]domain.Candidate{c}) })
			})
		},
	})
	h.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List forms waiting for a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				items, err := rt.Engine.ListPending(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, func() { renderPending(items) })
			})
		},
	})
	h.AddCommand(&cobra.Command{
		Use:   "approve <form-id>",
		Short: "Approve a form; the candidate is hired and a contract draft requested",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				req, err := rt.Engine.Approve(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(req)
			})
		},
	})
	var comment string
	reject := &cobra.Command{
		Use:   "reject <form-id>",
		Short: "Reject a form back to the recruiter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				d, err := rt.Engine.Reject(ctx, actor, args[0], comment)
				if err != nil {
					return err
				}
				return printJSONOrTable(d, func() { renderDecisions([]domain.HRDDecision{d}) })
			})
		},
	}
	reject.Flags().StringVar(&comment, "comment", "", "reason for the rejection (required)")
	h.AddCommand(reject)
	h.AddCommand(&cobra.Command{
		Use:   "decisions <form-id>",
		Short: "Decision history of a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				items, err := rt.Engine.Decisions(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items, func() { renderDecisions(items) })
			})
		},
	})
	return h
}

func eventsCmd() *cobra.Command {
	var opts engine.EventListOptions
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				items, err := rt.Engine.ListEvents(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, func() {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"ID", "At", "Type", "Entity", "Actor"})
					for _, e := range items {
						tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID})
					}
					tw.Render()
				})
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&opts.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&opts.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&opts.EntityID, "entity-id", "", "entity id")
	cmd.Flags().Int64Var(&opts.Before, "before", 0, "only events with id below this")
	return cmd
}

func renderPending(items []engine.PendingForm) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Form", "Candidate", "Name", "Type", "Sent to HRD"})
	for _, p := range items {
		tw.AppendRow(table.Row{p.Form.ID, p.Candidate.ID, p.Candidate.FullName, p.Candidate.EmploymentType, deref(p.Form.SubmittedForHRDAt)})
	}
	tw.Render()
}

func renderDecisions(items []domain.HRDDecision) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Decision", "Actor", "At", "Comment"})
	for _, d := range items {
		tw.AppendRow(table.Row{d.Decision, d.ActorID, d.DecidedAt, d.Comment})
	}
	tw.Render()
}
