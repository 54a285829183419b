package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"Parry-QV/sdk/go/parryqv"
)

type submitFlags struct {
	id          string
	wait        bool
	waitTimeout time.Duration
}

func (f *submitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "id", "", "idempotency id; resubmitting the same id returns the existing action")
	cmd.Flags().BoolVarP(&f.wait, "wait", "w", false, "wait until the action is confirmed or failed")
	cmd.Flags().DurationVar(&f.waitTimeout, "wait-timeout", 2*time.Minute, "how long --wait polls before giving up")
}

// submit queues req and optionally follows it to a terminal status.
func (f *submitFlags) submit(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, req parryqv.ActionRequest) error {
	req.ID = f.id
	submitCtx, cancel := requestContext(ctx)
	defer cancel()
	queued, err := client.SubmitAction(submitCtx, req)
	if err != nil {
		return fmt.Errorf("submit %s: %s", req.Kind, describeError(err))
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "action %s %s\n", queued.ID, queued.Status)
	if !f.wait || queued.Finished() {
		return reportFinished(cmd, queued)
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, f.waitTimeout)
	defer cancelWait()
	final, err := client.WaitForAction(waitCtx, queued.ID, time.Second)
	if err != nil {
		return fmt.Errorf("wait for action %s: %s", queued.ID, describeError(err))
	}
	return reportFinished(cmd, final)
}

func reportFinished(cmd *cobra.Command, a parryqv.Action) error {
	out := cmd.OutOrStdout()
	switch a.Status {
	case parryqv.StatusConfirmed:
		if a.Result != nil {
			fmt.Fprintf(out, "confirmed via %s tx %s\n", a.Result.Strategy, a.Result.TxHash)
		}
	case parryqv.StatusFailed:
		return fmt.Errorf("action %s failed: %s %s", a.ID, a.ErrorCode, a.LastError)
	}
	return nil
}

func createProjectCommand() *cobra.Command {
	var (
		flags  submitFlags
		params parryqv.ActionParams
	)
	cmd := &cobra.Command{
		Use:   "create-project",
		Short: "Create a quadratic voting project",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, _ []string) error {
			return flags.submit(ctx, cmd, client, parryqv.ActionRequest{
				Kind:   parryqv.KindCreateProject,
				Params: params,
			})
		}),
	}
	cmd.Flags().StringVar(&params.Name, "name", "", "project name")
	cmd.Flags().StringVar(&params.Description, "description", "", "project description")
	cmd.Flags().StringVar(&params.MediaHash, "media", "", "pinned media hash")
	cmd.Flags().Uint64Var(&params.TokensPerUser, "tokens", 0, "tokens granted to each member")
	cmd.Flags().Uint64Var(&params.TokensPerVerifiedUser, "verified-tokens", 0, "tokens granted to each verified member")
	cmd.Flags().Float64Var(&params.MinScoreToJoin, "min-join-score", 0, "minimum passport score to join")
	cmd.Flags().Float64Var(&params.MinScoreToVerify, "min-verify-score", 0, "minimum passport score to be verified")
	cmd.Flags().Uint64Var(&params.EndDays, "days", 0, "voting period in days")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("description")
	flags.register(cmd)
	return cmd
}

func createPollCommand() *cobra.Command {
	var (
		flags  submitFlags
		params parryqv.ActionParams
	)
	cmd := &cobra.Command{
		Use:   "create-poll <project>",
		Short: "Create a poll inside a project",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			return flags.submit(ctx, cmd, client, parryqv.ActionRequest{
				Kind:    parryqv.KindCreatePoll,
				Project: args[0],
				Params:  params,
			})
		}),
	}
	cmd.Flags().StringVar(&params.Name, "name", "", "poll name")
	cmd.Flags().StringVar(&params.Description, "description", "", "poll description")
	cmd.Flags().StringVar(&params.MediaHash, "media", "", "pinned media hash")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("description")
	flags.register(cmd)
	return cmd
}

func joinCommand() *cobra.Command {
	var flags submitFlags
	cmd := &cobra.Command{
		Use:   "join <project>",
		Short: "Join a project with the gateway wallet",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			return flags.submit(ctx, cmd, client, parryqv.ActionRequest{
				Kind:    parryqv.KindJoinProject,
				Project: args[0],
			})
		}),
	}
	flags.register(cmd)
	return cmd
}

func voteCommand() *cobra.Command {
	var flags submitFlags
	cmd := &cobra.Command{
		Use:   "vote <project> <poll-index> <votes>",
		Short: "Cast votes on a poll; the cost is votes squared",
		Args:  cobra.ExactArgs(3),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			index, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("poll index must be a non-negative integer: %w", err)
			}
			votes, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("votes must be an integer: %w", err)
			}
			return flags.submit(ctx, cmd, client, parryqv.ActionRequest{
				Kind:    parryqv.KindCastVote,
				Project: args[0],
				Params:  parryqv.ActionParams{PollIndex: index, Votes: votes},
			})
		}),
	}
	flags.register(cmd)
	return cmd
}

func actionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Inspect submitted actions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one action",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			found, err := client.Action(ctx, args[0])
			if err != nil {
				return fmt.Errorf("show action: %s", describeError(err))
			}
			return printJSON(cmd.OutOrStdout(), found)
		}),
	})

	var (
		statuses, kinds, project string
		limit, offset            int
		ascending                bool
	)
	filter := func() parryqv.ActionFilter {
		return parryqv.ActionFilter{
			Statuses:  splitList(statuses),
			Kinds:     splitList(kinds),
			Project:   project,
			Limit:     limit,
			Offset:    offset,
			Ascending: ascending,
		}
	}
	bindFilter := func(c *cobra.Command) {
		c.Flags().StringVar(&statuses, "status", "", "comma separated statuses")
		c.Flags().StringVar(&kinds, "kind", "", "comma separated kinds")
		c.Flags().StringVar(&project, "project", "", "project address")
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List actions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, _ []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			actions, err := client.ListActions(ctx, filter())
			if err != nil {
				return fmt.Errorf("list actions: %s", describeError(err))
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tPROJECT\tUPDATED")
			for _, a := range actions {
				updated := time.Unix(a.UpdatedAt, 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Kind, a.Status, a.Project, updated)
			}
			return tw.Flush()
		}),
	}
	bindFilter(list)
	list.Flags().IntVar(&limit, "limit", 20, "maximum actions to list")
	list.Flags().IntVar(&offset, "offset", 0, "actions to skip")
	list.Flags().BoolVar(&ascending, "asc", false, "oldest first")
	cmd.AddCommand(list)

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate action counts",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, _ []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			result, err := client.ActionStats(ctx, filter())
			if err != nil {
				return fmt.Errorf("action stats: %s", describeError(err))
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
	bindFilter(stats)
	cmd.AddCommand(stats)
	return cmd
}

func uploadCommand() *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Pin an image and print its content hash",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(args[0]))
			}
			if contentType == "" {
				return fmt.Errorf("cannot infer content type of %s, pass --type", args[0])
			}
			ctx, cancel := requestContext(ctx)
			defer cancel()
			media, err := client.UploadMedia(ctx, filepath.Base(args[0]), contentType, file)
			if err != nil {
				return fmt.Errorf("upload: %s", describeError(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", media.Hash, media.URL)
			return nil
		}),
	}
	cmd.Flags().StringVar(&contentType, "type", "", "media content type, inferred from the extension when empty")
	return cmd
}
