package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/coursehub/modhub/internal/config"
)

// onboardCmd writes an initial config.json from flags. Secrets stay out
// of the file: the bot token, webhook secret and AI key go in .env.
func onboardCmd() *cobra.Command {
	var (
		hubChatID   int64
		moderatorID int64
		groupIDs    []int64
		groupNames  []string
		webhookPort int
		aiEnabled   bool
		digestCron  string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Write an initial config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}

			cfg := config.Default()
			cfg.Hub.HubChatID = hubChatID
			cfg.Hub.ModeratorUserID = moderatorID
			cfg.AI.Enabled = aiEnabled
			cfg.Digest.Cron = digestCron
			if webhookPort > 0 {
				cfg.Webhook.Enabled = true
				cfg.Webhook.Port = webhookPort
			}

			for i, id := range groupIDs {
				name := fmt.Sprintf("group_%d", i+1)
				if i < len(groupNames) {
					name = groupNames[i]
				}
				cfg.Sources.Groups = append(cfg.Sources.Groups, config.GroupSourceConfig{
					Key:     fmt.Sprintf("group_%d", i+1),
					ChatID:  id,
					Name:    name,
					Enabled: true,
				})
			}

			if dir := filepath.Dir(cfgPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create config dir: %w", err)
				}
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			if err := os.WriteFile(cfgPath, data, 0600); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			fmt.Printf("Config written to %s\n\n", cfgPath)
			fmt.Println("Set secrets in the environment (or a local .env):")
			fmt.Println("  MODHUB_BOT_TOKEN=...")
			if cfg.Webhook.Enabled {
				fmt.Println("  MODHUB_WEBHOOK_SECRET=...")
			}
			if cfg.AI.Enabled {
				fmt.Println("  MODHUB_AI_API_KEY=...")
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&hubChatID, "hub-chat-id", 0, "hub chat id (where cards are posted)")
	cmd.Flags().Int64Var(&moderatorID, "moderator-id", 0, "moderator user id")
	cmd.Flags().Int64SliceVar(&groupIDs, "group", nil, "monitored group chat id (repeatable)")
	cmd.Flags().StringSliceVar(&groupNames, "group-name", nil, "display name for the matching --group")
	cmd.Flags().IntVar(&webhookPort, "webhook-port", 0, "enable the LMS webhook on this port")
	cmd.Flags().BoolVar(&aiEnabled, "ai", false, "enable AI draft generation")
	cmd.Flags().StringVar(&digestCron, "digest-cron", "", "cron schedule for the unreplied digest")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}
