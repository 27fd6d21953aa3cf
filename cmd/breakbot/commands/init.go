package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/MEKXH/breakbot/internal/config"
	"github.com/spf13/cobra"
)

func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default breakbot configuration",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = config.ConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	if err := config.Save(path, config.DefaultConfig()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Breakbot initialized!\n")
	fmt.Printf("Config: %s\n", path)
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("1. Set telegram.token in %s (or export BOT_TOKEN)\n", path)
	fmt.Printf("2. Add the bot to the approver group and send /getchatid there\n")
	fmt.Printf("3. Set telegram.approver_chat_id to that id (or export GROUP_CHAT_ID)\n")
	fmt.Printf("4. Run 'breakbot run'\n")

	return nil
}
