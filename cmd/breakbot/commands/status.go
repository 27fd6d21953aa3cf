package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MEKXH/breakbot/internal/config"
	"github.com/spf13/cobra"
)

var statusJSON bool

const probeTimeout = 2 * time.Second

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show breakbot configuration and whether it is running",
		RunE:  runStatus,
	}
	cmd.Flags().BoolVar(&statusJSON, "json", false, "Print status as JSON")
	return cmd
}

type statusReport struct {
	ConfigPath     string `json:"config_path"`
	ConfigFound    bool   `json:"config_found"`
	TokenSet       bool   `json:"token_set"`
	ApproverChatID int64  `json:"approver_chat_id"`
	IntakeTimeout  string `json:"intake_timeout"`
	RetryAttempts  int    `json:"retry_attempts"`
	Gateway        string `json:"gateway,omitempty"`
	Running        bool   `json:"running"`
	ActiveSessions *int   `json:"active_sessions,omitempty"`
	ProbeError     string `json:"probe_error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	report := buildStatusReport(cfg)
	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Println("=== Breakbot Status ===")
	fmt.Println()

	fmt.Printf("Config: %s\n", report.ConfigPath)
	if report.ConfigFound {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found (run 'breakbot init')")
	}

	fmt.Println("\nTelegram:")
	if report.TokenSet {
		fmt.Println("  Token: configured")
	} else {
		fmt.Println("  Token: not configured")
	}
	if report.ApproverChatID != 0 {
		fmt.Printf("  Approver chat: %d\n", report.ApproverChatID)
	} else {
		fmt.Println("  Approver chat: not configured (send /getchatid in the group)")
	}

	fmt.Println("\nIntake:")
	fmt.Printf("  Timeout: %s\n", report.IntakeTimeout)
	fmt.Printf("  Delivery retries: %d\n", report.RetryAttempts)

	fmt.Println("\nGateway:")
	if report.Gateway == "" {
		fmt.Println("  disabled")
		return nil
	}
	fmt.Printf("  Address: %s\n", report.Gateway)
	if report.Running {
		fmt.Printf("  Bot: running (%d open sessions)\n", derefInt(report.ActiveSessions))
	} else {
		fmt.Printf("  Bot: not reachable (%s)\n", report.ProbeError)
	}
	return nil
}

func buildStatusReport(cfg *config.Config) statusReport {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = config.ConfigPath()
	}
	_, statErr := os.Stat(path)

	report := statusReport{
		ConfigPath:     path,
		ConfigFound:    statErr == nil,
		TokenSet:       strings.TrimSpace(cfg.Telegram.Token) != "",
		ApproverChatID: cfg.Telegram.ApproverChatID,
		IntakeTimeout:  cfg.Intake.Timeout().String(),
		RetryAttempts:  cfg.Delivery.RetryAttempts,
	}
	if !cfg.Gateway.Enabled {
		return report
	}

	report.Gateway = cfg.Gateway.Addr()
	active, err := probeHealth(report.Gateway)
	if err != nil {
		report.ProbeError = err.Error()
		return report
	}
	report.Running = true
	report.ActiveSessions = &active
	return report
}

// probeHealth asks a running bot's gateway for its live session count.
func probeHealth(addr string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("health returned %s", resp.Status)
	}

	var body struct {
		ActiveSessions int `json:"active_sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode health: %w", err)
	}
	return body.ActiveSessions, nil
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
