package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coursehub/modhub/internal/config"
	"github.com/coursehub/modhub/internal/store"
)

// opsCmd groups offline store operations for use when the bot is down
// or from cron jobs on the host.
func opsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Offline store operations (mute, stats, unreplied queue)",
	}

	cmd.AddCommand(opsMuteCmd())
	cmd.AddCommand(opsUnmuteCmd())
	cmd.AddCommand(opsMutedCmd())
	cmd.AddCommand(opsUnrepliedCmd())
	cmd.AddCommand(opsStatsCmd())

	return cmd
}

func withStore(fn func(ctx context.Context, st store.Store) error) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, st)
}

func opsMuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mute <chat_id> [reason]",
		Short: "Suppress forwarding from a chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q", args[0])
			}
			reason := strings.Join(args[1:], " ")
			return withStore(func(ctx context.Context, st store.Store) error {
				if err := st.MuteChat(ctx, chatID, reason); err != nil {
					return err
				}
				fmt.Printf("chat %d muted\n", chatID)
				return nil
			})
		},
	}
}

func opsUnmuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unmute <chat_id>",
		Short: "Restore forwarding from a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q", args[0])
			}
			return withStore(func(ctx context.Context, st store.Store) error {
				if err := st.UnmuteChat(ctx, chatID); err != nil {
					return err
				}
				fmt.Printf("chat %d unmuted\n", chatID)
				return nil
			})
		},
	}
}

func opsMutedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "muted",
		Short: "List muted chats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, st store.Store) error {
				entries, err := st.MutedChats(ctx)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Println("no muted chats")
					return nil
				}
				for _, e := range entries {
					line := fmt.Sprintf("%d\tsince %s", e.ChatID, e.MutedAt.Format("2006-01-02 15:04"))
					if e.Reason != "" {
						line += "\t" + e.Reason
					}
					fmt.Println(line)
				}
				return nil
			})
		},
	}
}

func opsUnrepliedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "unreplied",
		Short: "Print the unreplied triage queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, st store.Store) error {
				mappings, err := st.Unreplied(ctx, limit)
				if err != nil {
					return err
				}
				if len(mappings) == 0 {
					fmt.Println("queue is empty")
					return nil
				}
				for _, m := range mappings {
					fmt.Printf("[%s] hub=%d %s (%s) %s\n",
						m.Priority, m.HubMessageID, m.SenderName, m.ChatName,
						m.Timestamp.Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max entries to print")
	return cmd
}

func opsStatsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, st store.Store) error {
				stats, err := st.Stats(ctx, days)
				if err != nil {
					return err
				}
				fmt.Printf("period: %d days\n", stats.PeriodDays)
				fmt.Printf("total: %d, replied: %d, unreplied: %d, urgent: %d\n",
					stats.Total, stats.Replied, stats.Unreplied, stats.Urgent)
				if stats.HasAvgReply {
					fmt.Printf("avg reply time: %.0f min\n", stats.AvgReplyMinutes)
				}
				for _, c := range stats.TopChats {
					fmt.Printf("  %s: %d\n", c.Name, c.Count)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "trailing window in days")
	return cmd
}
