package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"storyloom/internal/session"
	"storyloom/internal/story"
)

func newNewCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		genre      string
		style      string
		episodes   int
		duration   int
		characters int
		audience   string
		platform   string
		autonomous bool
	)

	cmd := &cobra.Command{
		Use:   "new <idea>",
		Short: "Start a new story session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withRuntime(func(ctx context.Context, rt *runtime) error {
				mode := story.ModeInteractive
				if autonomous {
					mode = story.ModeAutonomous
				}
				st, err := rt.runner.Start(ctx, story.Request{
					Idea:            strings.Join(args, " "),
					Genre:           genre,
					Style:           style,
					Episodes:        episodes,
					EpisodeDuration: duration,
					Characters:      characters,
					Audience:        audience,
					Platform:        platform,
				}, mode)
				if err != nil {
					return err
				}
				printState(cmd, st)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&genre, "genre", "", "Story genre")
	cmd.Flags().StringVar(&style, "style", "", "Visual style")
	cmd.Flags().IntVar(&episodes, "episodes", 1, "Number of episodes")
	cmd.Flags().IntVar(&duration, "duration", 0, "Episode duration in seconds")
	cmd.Flags().IntVar(&characters, "characters", 0, "Number of main characters")
	cmd.Flags().StringVar(&audience, "audience", "", "Target audience")
	cmd.Flags().StringVar(&platform, "platform", "", "Video platform (kling, hailuo, jimeng, tongyi)")
	cmd.Flags().BoolVar(&autonomous, "autonomous", false, "Run every phase without approval gates")
	return cmd
}

func newSessionsCommand(cmdCtx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withRuntime(func(ctx context.Context, rt *runtime) error {
				var status session.Status
				if trimmed := strings.TrimSpace(statusFlag); trimmed != "" {
					parsed, err := session.ParseStatus(trimmed)
					if err != nil {
						return err
					}
					status = parsed
				}

				sessions, err := rt.runner.ListSessions(ctx, status)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
					return nil
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderSessionTable(out, sessions))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (running, paused, completed, failed)")
	return cmd
}

func newShowCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session's state and checkpoint log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withRuntime(func(ctx context.Context, rt *runtime) error {
				st, err := rt.runner.GetState(ctx, args[0])
				if err != nil {
					return err
				}
				checkpoints, err := rt.runner.Checkpoints(ctx, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				printState(cmd, st)
				printArtifacts(cmd, st)

				if len(checkpoints) == 0 {
					return nil
				}
				fmt.Fprintln(out, "\nCheckpoints:")
				fmt.Fprintln(out, renderCheckpointTable(out, checkpoints))
				return nil
			})
		},
	}
}

func newApproveCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <session-id>",
		Short: "Approve the pending phase and advance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withRuntime(func(ctx context.Context, rt *runtime) error {
				st, err := rt.runner.Approve(ctx, args[0], true, "")
				if err != nil {
					return err
				}
				printState(cmd, st)
				return nil
			})
		},
	}
}

func newRejectCommand(cmdCtx *commandContext) *cobra.Command {
	var feedback string

	cmd := &cobra.Command{
		Use:   "reject <session-id>",
		Short: "Reject the pending phase and regenerate it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withRuntime(func(ctx context.Context, rt *runtime) error {
				st, err := rt.runner.Approve(ctx, args[0], false, feedback)
				if err != nil {
					return err
				}
				printState(cmd, st)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&feedback, "feedback", "", "What should change in the regenerated output")
	return cmd
}

func newResumeCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a suspended or failed session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withRuntime(func(ctx context.Context, rt *runtime) error {
				st, err := rt.runner.Resume(ctx, args[0])
				if err != nil {
					return err
				}
				printState(cmd, st)
				return nil
			})
		},
	}
}

func newDeleteCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its checkpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withRuntime(func(ctx context.Context, rt *runtime) error {
				if err := rt.runner.DeleteSession(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
