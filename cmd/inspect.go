package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"zapreply/pkg/config"
	"zapreply/pkg/guard"
	"zapreply/pkg/inbound"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [payload.json]",
	Short: "Normalize and classify a webhook payload offline",
	Long:  "Reads a webhook payload from a file or stdin and prints the normalized event and its disposition. No messages are sent.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		raw, err := readPayload(cmd, args)
		if err != nil {
			return err
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(inspectPayload(cfg, raw))
	},
}

type inspectResult struct {
	ChatTarget    string   `json:"chat_target"`
	Text          string   `json:"text"`
	EventType     string   `json:"event_type,omitempty"`
	FromMe        bool     `json:"from_me"`
	IsStatusEvent bool     `json:"is_status_event"`
	IsGroup       bool     `json:"is_group"`
	RawKeys       []string `json:"raw_keys"`
	Disposition   string   `json:"disposition"`
	Reason        string   `json:"reason,omitempty"`
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func inspectPayload(cfg *config.Config, raw []byte) inspectResult {
	event := inbound.Normalize(raw, inbound.Options{DigitsOnly: cfg.Webhook.DigitsOnly})
	disposition := guard.Classify(event, guard.Policy{
		EchoMarker:  cfg.Reply.EchoMarker,
		AllowGroups: cfg.Reply.AllowGroups,
	})

	return inspectResult{
		ChatTarget:    event.ChatTarget,
		Text:          event.Text,
		EventType:     event.EventType,
		FromMe:        event.Flags.FromMe,
		IsStatusEvent: event.Flags.IsStatusEvent,
		IsGroup:       event.Flags.IsGroup,
		RawKeys:       event.RawKeys,
		Disposition:   string(disposition),
		Reason:        disposition.Reason(),
	}
}

func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		return raw, nil
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read payload file: %w", err)
	}
	return raw, nil
}
