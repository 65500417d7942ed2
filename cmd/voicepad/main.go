package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/leonardotrapani/voicepad/internal/bus"
	"github.com/leonardotrapani/voicepad/internal/config"
	"github.com/leonardotrapani/voicepad/internal/daemon"
	"github.com/leonardotrapani/voicepad/internal/tui"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "voicepad",
	Short: "Voice-to-text scratchpad",
	Long: `voicepad keeps a scratchpad of dictated text. Each listening session
appends what you said; edit the text or copy it to the clipboard when done.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		toggleCmd(),
		beginCmd(),
		endCmd(),
		statusCmd(),
		textCmd(),
		inflightCmd(),
		setCmd(),
		editCmd(),
		copyCmd(),
		watchCmd(),
		versionCmd(),
		stopCmd(),
		configureCmd(),
		transcribeCmd(),
	)
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mgr *config.Manager
			var err error
			if configPath != "" {
				mgr, err = config.NewManagerForFile(configPath)
			} else {
				mgr, err = config.NewManager()
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			d, err := daemon.New(mgr)
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			return d.Run()
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/voicepad/config.toml)")
	return cmd
}

// simpleCmd sends one bus command and prints the daemon's answer.
func simpleCmd(use, short string, c byte, what string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(bus.Request{Cmd: c})
			if err != nil {
				return fmt.Errorf("failed to %s: %w", what, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), resp)
			return bus.ResponseError(resp)
		},
	}
}

func toggleCmd() *cobra.Command {
	return simpleCmd("toggle", "Start or stop listening", 't', "toggle listening")
}

func beginCmd() *cobra.Command {
	return simpleCmd("begin", "Start listening", 'b', "start listening")
}

func endCmd() *cobra.Command {
	return simpleCmd("end", "Stop listening; the current sentence is still added", 'e', "stop listening")
}

func versionCmd() *cobra.Command {
	return simpleCmd("version", "Get protocol version", 'v', "get version")
}

func stopCmd() *cobra.Command {
	return simpleCmd("stop", "Stop the daemon", 'q', "stop daemon")
}

func statusCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether voicepad is listening",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(bus.Request{Cmd: 's'})
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			if raw {
				fmt.Fprint(cmd.OutOrStdout(), resp)
				return bus.ResponseError(resp)
			}
			if err := bus.ResponseError(resp); err != nil {
				return err
			}
			badge, err := tui.FormatStatus(resp)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), badge)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the protocol response")
	return cmd
}

func textCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "text",
		Short: "Print the scratchpad",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := fetchText('g')
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func inflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inflight",
		Short: "Print the sentence currently being recognized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := fetchText('i')
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [text]",
		Short: "Replace the scratchpad (reads stdin when no text or \"-\" is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := payloadFromArgs(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			resp, err := send(bus.Request{Cmd: 'r', Payload: text})
			if err != nil {
				return fmt.Errorf("failed to replace text: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), resp)
			return bus.ResponseError(resp)
		},
	}
}

func editCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Edit the scratchpad in $EDITOR",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd)
		},
	}
}

func copyCmd() *cobra.Command {
	var noFallback bool

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy the scratchpad to the clipboard",
		Long: `Copy the scratchpad to the clipboard through the daemon. When no
clipboard backend works, the text is sent to the terminal with OSC 52.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := copyWithFallback(cmd.OutOrStdout(), send, !noFallback)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.ErrOrStderr(), resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noFallback, "no-fallback", false, "Do not fall back to OSC 52")
	return cmd
}

func watchCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the scratchpad live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if plain || !isTerminal(os.Stdout) {
				return watchPlain(cmd.Context(), cmd.OutOrStdout())
			}
			return watchTUI(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Print SNAPSHOT lines instead of the live view")
	return cmd
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration for voicepad:
- Speech backends, locale and session timing
- Deepgram and OpenAI API keys
- Clipboard, notification and metrics settings`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	configPath, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	if err := config.Save(result.Config, configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved successfully!")
	fmt.Println()
	showNextSteps(configPath)
	return nil
}

func showNextSteps(configPath string) {
	serviceRunning := false
	if err := exec.Command("systemctl", "--user", "is-active", "--quiet", "voicepad.service").Run(); err == nil {
		serviceRunning = true
	}

	fmt.Println("Next Steps:")
	if serviceRunning {
		fmt.Println("1. Restart the service to switch speech backends: systemctl --user restart voicepad.service")
		fmt.Println("   (clipboard and notification changes apply immediately)")
	} else {
		fmt.Println("1. Start the daemon: voicepad serve (or systemctl --user start voicepad.service)")
	}
	fmt.Println("2. Dictate: voicepad toggle")
	fmt.Println("3. Copy the result: voicepad copy")
	fmt.Println()
	fmt.Printf("Config file location: %s\n", configPath)
}

var errDaemonNotRunning = errors.New("daemon not running (start it with: voicepad serve)")
