package commands

import (
	"encoding/json"
	"net"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/MEKXH/breakbot/internal/config"
	"github.com/MEKXH/breakbot/internal/gateway"
)

func writeStatusConfig(t *testing.T, cfg *config.Config) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	useConfigPath(t, path)
}

func TestStatusCommand_GatewayDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.Enabled = false
	writeStatusConfig(t, cfg)

	output := captureOutput(t, func() {
		if err := runStatus(nil, nil); err != nil {
			t.Fatalf("runStatus error: %v", err)
		}
	})
	for _, want := range []string{"Breakbot Status", "Status: OK", "Token: not configured", "Timeout: 5m0s", "disabled"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestStatusCommand_ProbesRunningGateway(t *testing.T) {
	srv := httptest.NewServer(gateway.NewHandler(gateway.Deps{ActiveSessions: func() int { return 4 }}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	host, portText, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portText)

	cfg := config.DefaultConfig()
	cfg.Telegram.Token = "abc"
	cfg.Telegram.ApproverChatID = -100
	cfg.Gateway.Host = host
	cfg.Gateway.Port = port
	writeStatusConfig(t, cfg)

	output := captureOutput(t, func() {
		if err := runStatus(nil, nil); err != nil {
			t.Fatalf("runStatus error: %v", err)
		}
	})
	if !strings.Contains(output, "running (4 open sessions)") || !strings.Contains(output, "Approver chat: -100") {
		t.Fatalf("unexpected output:\n%s", output)
	}
}

func TestStatusCommand_JSONReportsUnreachableGateway(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	cfg := config.DefaultConfig()
	cfg.Gateway.Port = port
	writeStatusConfig(t, cfg)

	old := statusJSON
	statusJSON = true
	t.Cleanup(func() { statusJSON = old })

	output := captureOutput(t, func() {
		if err := runStatus(nil, nil); err != nil {
			t.Fatalf("runStatus error: %v", err)
		}
	})
	var report statusReport
	if err := json.Unmarshal([]byte(output), &report); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, output)
	}
	if report.Running || report.ProbeError == "" {
		t.Fatalf("expected unreachable gateway, got %+v", report)
	}
	if !report.ConfigFound {
		t.Fatalf("expected config to be found, got %+v", report)
	}
}

func TestStatusCommand_MissingConfig(t *testing.T) {
	useConfigPath(t, filepath.Join(t.TempDir(), "absent.json"))
	t.Setenv("BREAKBOT_GATEWAY_ENABLED", "false")

	output := captureOutput(t, func() {
		if err := runStatus(nil, nil); err != nil {
			t.Fatalf("runStatus error: %v", err)
		}
	})
	if !strings.Contains(output, "breakbot init") {
		t.Fatalf("expected init hint, got:\n%s", output)
	}
	if _, err := os.Stat(configPath); !os.IsNotExist(err) {
		t.Fatal("status must not create a config file")
	}
}
