package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"Parry-QV/sdk/go/parryqv"
)

func projectsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Browse voting projects",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every project",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, _ []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			projects, err := client.Projects(ctx)
			if err != nil {
				return fmt.Errorf("list projects: %s", describeError(err))
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ADDRESS\tNAME\tMIN SCORE\tENDS")
			for _, p := range projects {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Address, p.Name, p.MinScoreToJoinDisplay, p.EndTime)
			}
			return tw.Flush()
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <address>",
		Short: "Show one project",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			project, err := client.Project(ctx, args[0])
			if err != nil {
				return fmt.Errorf("show project: %s", describeError(err))
			}
			return printJSON(cmd.OutOrStdout(), project)
		}),
	})
	return cmd
}

func pollsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "polls",
		Short: "Browse the polls of a project",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list <project>",
		Short: "List the polls of a project",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			polls, err := client.Polls(ctx, args[0])
			if err != nil {
				return fmt.Errorf("list polls: %s", describeError(err))
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tNAME\tACTIVE\tPARTICIPANTS\tVOTES")
			for _, p := range polls {
				fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\n", p.Index, p.Name, p.IsActive, p.TotalParticipants, p.TotalVotes)
			}
			return tw.Flush()
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <project> <index>",
		Short: "Show one poll",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			index, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("poll index must be a non-negative integer: %w", err)
			}
			ctx, cancel := requestContext(ctx)
			defer cancel()
			poll, err := client.Poll(ctx, args[0], index)
			if err != nil {
				return fmt.Errorf("show poll: %s", describeError(err))
			}
			return printJSON(cmd.OutOrStdout(), poll)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "vote <project> <index> <wallet>",
		Short: "Show a wallet's vote on a poll",
		Args:  cobra.ExactArgs(3),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			index, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("poll index must be a non-negative integer: %w", err)
			}
			ctx, cancel := requestContext(ctx)
			defer cancel()
			record, err := client.VoteRecord(ctx, args[0], index, args[2])
			if err != nil {
				return fmt.Errorf("show vote: %s", describeError(err))
			}
			return printJSON(cmd.OutOrStdout(), record)
		}),
	})
	return cmd
}

func memberCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "member <project> <wallet>",
		Short: "Show a wallet's membership in a project",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			membership, err := client.Membership(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("show membership: %s", describeError(err))
			}
			return printJSON(cmd.OutOrStdout(), membership)
		}),
	}
}

func passportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "passport <wallet>",
		Short: "Show a wallet's identity score",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			score, err := client.PassportScore(ctx, args[0])
			if err != nil {
				return fmt.Errorf("show passport score: %s", describeError(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", score.Wallet, score.Display)
			return nil
		}),
	}
}

func quoteCommand() *cobra.Command {
	var tokensLeft string
	cmd := &cobra.Command{
		Use:   "quote <votes>",
		Short: "Preview the quadratic cost of a vote",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			quote, err := client.Quote(ctx, args[0], tokensLeft)
			if err != nil {
				return fmt.Errorf("quote: %s", describeError(err))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "votes %s cost %s\n", quote.Votes, quote.Cost)
			if quote.TokensLeft != "" {
				fmt.Fprintf(out, "tokens left %s remaining %s affordable %t\n", quote.TokensLeft, quote.Remaining, quote.Affordable)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&tokensLeft, "tokens-left", "", "member token balance to check affordability against")
	return cmd
}

func sessionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the gateway wallet session",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, _ []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			session, err := client.Session(ctx)
			if err != nil {
				return fmt.Errorf("session: %s", describeError(err))
			}
			return printJSON(cmd.OutOrStdout(), session)
		}),
	}
}

func connectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Ask the gateway wallet for account access",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, _ []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			session, err := client.Connect(ctx)
			if err != nil {
				return fmt.Errorf("connect: %s", describeError(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected %s\n", session.Address)
			return nil
		}),
	}
}

func switchAccountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <address>",
		Short: "Switch the gateway wallet to another managed account",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			session, err := client.SelectAccount(ctx, args[0])
			if err != nil {
				return fmt.Errorf("switch: %s", describeError(err))
			}
			if !session.Connected {
				fmt.Fprintln(cmd.OutOrStdout(), "selected; run connect to authorise it")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "switched to %s\n", session.Address)
			return nil
		}),
	}
}

func disconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Revoke the gateway wallet authorisation",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, _ []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			if _, err := client.Disconnect(ctx); err != nil {
				return fmt.Errorf("disconnect: %s", describeError(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "disconnected")
			return nil
		}),
	}
}

func explorerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "explorer <tx-hash>",
		Short: "Print the block-explorer link of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, cmd *cobra.Command, client *parryqv.Client, args []string) error {
			ctx, cancel := requestContext(ctx)
			defer cancel()
			link, err := client.ExplorerLink(ctx, args[0])
			if err != nil {
				return fmt.Errorf("explorer link: %s", describeError(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		}),
	}
}
