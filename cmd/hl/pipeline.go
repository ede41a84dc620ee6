package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"hireline/internal/app"
	"hireline/internal/domain"
	"hireline/internal/engine"
	"hireline/internal/server"
)

func candidateCmd() *cobra.Command {
	c := &cobra.Command{Use: "candidate", Short: "Manage candidates"}
	c.AddCommand(candidateCreateCmd())
	c.AddCommand(candidateListCmd())
	c.AddCommand(candidateShowCmd())
	c.AddCommand(candidateTransitionCmd())
	c.AddCommand(candidateHistoryCmd())
	return c
}

func candidateCreateCmd() *cobra.Command {
	var opts engine.CandidateCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a candidate in status new",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				c, err := rt.Engine.CreateCandidate(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c, func() { renderCandidates([]domain.Candidate{c}) })
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "candidate id (generated when empty)")
	cmd.Flags().StringVar(&opts.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&opts.EmploymentType, "employment-type", "pkwt", "employment type")
	cmd.Flags().StringVar(&opts.Position, "position", "", "position")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func candidateListCmd() *cobra.Command {
	var status, cursor string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List candidates, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				opts := engine.CandidateListOptions{Limit: limit, Cursor: cursor}
				if status != "" {
					s, err := domain.ParseStatus(status)
					if err != nil {
						return err
					}
					opts.Status = s
				}
				page, err := rt.Engine.ListCandidates(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(page, func() {
					renderCandidates(page.Items)
					if page.NextCursor != "" {
						fmt.Printf("next cursor: %s\n", page.NextCursor)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	return cmd
}

func candidateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a candidate and its allowed next statuses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				c, err := rt.Engine.GetCandidate(ctx, actor, args[0])
				if err != nil {
					return err
				}
				out := struct {
					domain.Candidate
					AllowedNext []domain.Status `json:"allowed_next"`
				}{c, domain.AllowedNext(c.Status)}
				return printJSONOrTable(out, func() {
					renderCandidates([]domain.Candidate{c})
					fmt.Printf("allowed next: %v\n", out.AllowedNext)
				})
			})
		},
	}
}

func candidateTransitionCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "Move a candidate along a manual edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := domain.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				res, err := rt.Engine.Transition(ctx, actor, args[0], to, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(res, func() {
					renderCandidates([]domain.Candidate{res.Candidate})
					if res.Link != nil {
						renderLink(*res.Link)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the transition")
	return cmd
}

func candidateHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the transition history of a candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				items, err := rt.Engine.ListTransitions(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items, func() {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"At", "From", "To", "Trigger", "Actor", "Reason"})
					for _, r := range items {
						tw.AppendRow(table.Row{r.TS, r.From, r.To, r.Trigger, r.ActorID, r.Reason})
					}
					tw.Render()
				})
			})
		},
	}
}

func linkCmd() *cobra.Command {
	l := &cobra.Command{Use: "link", Short: "Manage onboarding links"}
	var ttl string
	issue := &cobra.Command{
		Use:   "issue <candidate-id>",
		Short: "Issue a fresh onboarding link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := server.ParseTTL(ttl)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				link, err := rt.Engine.IssueLink(ctx, actor, args[0], d)
				if err != nil {
					return err
				}
				return printJSONOrTable(link, func() { renderLink(link) })
			})
		},
	}
	issue.Flags().StringVar(&ttl, "ttl", "", `link lifetime, e.g. "72h" or "7d" (tenant default when empty)`)
	l.AddCommand(issue)
	return l
}

func onboardingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboarding <candidate-id>",
		Short: "Show link, form and document state for a candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				st, err := rt.Engine.OnboardingStatus(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(st, func() {
					renderCandidates([]domain.Candidate{st.Candidate})
					fmt.Printf("link: %s\n", st.LinkState)
					if st.Form != nil {
						fmt.Printf("form: submitted=%s reviewed=%s hrd=%s\n",
							deref(st.Form.SubmittedAt), deref(st.Form.DataReviewedAt), deref(st.Form.SubmittedForHRDAt))
					}
					renderDocuments(st.Documents)
				})
			})
		},
	}
}

func formCmd() *cobra.Command {
	f := &cobra.Command{Use: "form", Short: "Review onboarding forms"}
	f.AddCommand(&cobra.Command{
		Use:   "show <candidate-id>",
		Short: "Show the onboarding form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				form, err := rt.Engine.GetForm(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(form)
			})
		},
	})
	var set map[string]string
	review := &cobra.Command{
		Use:   "review <candidate-id>",
		Short: "Mark a submitted form reviewed, optionally correcting fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := domain.PatchFromMap(set)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				form, err := rt.Engine.ReviewForm(ctx, actor, args[0], patch)
				if err != nil {
					return err
				}
				return printJSON(form)
			})
		},
	}
	review.Flags().StringToStringVar(&set, "set", nil, "field corrections, e.g. --set bank_name=BCA")
	f.AddCommand(review)
	f.AddCommand(&cobra.Command{
		Use:   "reopen <candidate-id>",
		Short: "Unlock a form after an HRD rejection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				form, err := rt.Engine.ReopenForm(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(form)
			})
		},
	})
	return f
}

func renderCandidates(items []domain.Candidate) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Type", "Position", "Status", "Updated"})
	for _, c := range items {
		tw.AppendRow(table.Row{c.ID, c.FullName, c.EmploymentType, c.Position, c.Status, c.UpdatedAt})
	}
	tw.Render()
}

func renderLink(l domain.OnboardingLink) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Link", "Expires", "URL"})
	url := l.URL
	if url == "" {
		url = l.Token
	}
	tw.AppendRow(table.Row{l.ID, l.ExpiresAt, url})
	tw.Render()
}

func renderDocuments(items []domain.Document) {
	if len(items) == 0 {
		fmt.Println("no documents")
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Kind", "MIME", "Size", "Outcome", "Uploaded"})
	for _, d := range items {
		tw.AppendRow(table.Row{d.ID, d.Kind, d.MIME, d.Size, d.Outcome, d.UploadedAt})
	}
	tw.Render()
}
