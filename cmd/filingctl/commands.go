package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/smallbiznis/valora-filing/internal/apikey"
	"github.com/smallbiznis/valora-filing/internal/bootstrap"
	"github.com/smallbiznis/valora-filing/internal/domain/filing"
	"github.com/smallbiznis/valora-filing/internal/forms"
	"github.com/smallbiznis/valora-filing/internal/poller"
	"github.com/smallbiznis/valora-filing/internal/service"
)

func (c *cli) formsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forms",
		Short: "List the supported form types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return renderForms(cmd.OutOrStdout(), c.markdown, forms.KnownForms())
		},
	}
}

func (c *cli) submitCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "submit <form> <payload.json>",
		Short: "Create, validate and transmit a filing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.formService(args[0])
			if err != nil {
				return err
			}
			payload, err := readPayload(args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			repo, closeRepo, err := bootstrap.OpenRepository(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer closeRepo()
			node, err := bootstrap.NewSnowflake()
			if err != nil {
				return err
			}
			tracker := service.NewTracker(bootstrap.NewPoller(c.cfg, c.logger), c.logger)
			defer func() { _ = tracker.StopAll(ctx) }()

			submitter := service.NewSubmitter[json.RawMessage](svc, repo, tracker, node, service.WithLogger(c.logger))
			sub, err := submitter.Submit(ctx, payload)
			if sub != nil {
				if rerr := renderSubmission(cmd.OutOrStdout(), c.markdown, sub); rerr != nil {
					return rerr
				}
			}
			if err != nil {
				return err
			}
			if !watch || sub.State != filing.StateFiled {
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "watching for acknowledgement, ctrl-c to stop")
			session, err := submitter.Track(ctx, sub.ID, func(s *filing.FormSubmission) {
				if s.LastStatus != nil {
					_ = renderStatus(out, c.markdown, *s.LastStatus)
				}
			})
			if err != nil {
				return err
			}
			return waitSession(cmd, session)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "poll the status until the filing is acknowledged")
	return cmd
}

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <form> <submission-id>",
		Short: "Show the validation errors of a submission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.formService(args[0])
			if err != nil {
				return err
			}
			problems, err := svc.Validate(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if len(problems) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no validation errors")
				return nil
			}
			return renderValidation(cmd.OutOrStdout(), c.markdown, problems)
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <form> <submission-id>",
		Short: "Fetch the current status once",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.formService(args[0])
			if err != nil {
				return err
			}
			result, err := svc.GetStatus(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return renderStatus(cmd.OutOrStdout(), c.markdown, result)
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <form> <submission-id>",
		Short: "Poll the status until the filing is acknowledged or polling gives up",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.formService(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			p := bootstrap.NewPoller(c.cfg, c.logger)
			session := p.Start(cmd.Context(), args[1], svc, func(result filing.StatusResult) {
				_ = renderStatus(out, c.markdown, result)
			})
			return waitSession(cmd, session)
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list <form>",
		Short: "List filings of a form type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.formService(args[0])
			if err != nil {
				return err
			}
			result, err := svc.List(cmd.Context(), page, pageSize)
			if err != nil {
				return err
			}
			return renderList(cmd.OutOrStdout(), c.markdown, result)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 10, "records per page")
	return cmd
}

func (c *cli) pdfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pdf <form> <submission-id>",
		Short: "Print the URL of the generated PDF",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.formService(args[0])
			if err != nil {
				return err
			}
			url, err := svc.GetPDF(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <form> <submission-id>",
		Short: "Delete a filing that has not been acknowledged",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.formService(args[0])
			if err != nil {
				return err
			}
			if err := svc.Delete(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[1])
			return nil
		},
	}
}

func (c *cli) keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Issue a gateway API key and print its API_KEY_HASHES record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, record, err := apikey.Generate()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:    %s\n", key)
			fmt.Fprintf(out, "record: %s\n", record)
			fmt.Fprintln(out, "the key is shown once; add the record to API_KEY_HASHES")
			return nil
		},
	}
}

func waitSession(cmd *cobra.Command, session *poller.Session) error {
	select {
	case <-session.Done():
	case <-cmd.Context().Done():
		session.Stop()
		<-session.Done()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "polling ended: %s after %d polls\n", session.Reason(), session.Polls())
	if session.Reason() == poller.ReasonDeadline {
		fmt.Fprintln(cmd.OutOrStdout(), "no acknowledgement yet; the filing is still pending")
	}
	return nil
}

func readPayload(path string) (json.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if !sonic.Valid(raw) {
		return nil, fmt.Errorf("payload %s is not valid JSON", path)
	}
	return json.RawMessage(raw), nil
}
