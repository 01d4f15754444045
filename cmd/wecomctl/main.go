package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"wecomctl/internal/config"
	"wecomctl/internal/dispatch"
	"wecomctl/internal/wecom"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := rootCmd()
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		to        string
		imagePath string
		filePath  string
	)

	cmd := &cobra.Command{
		Use:   "wecomctl [message]",
		Short: "Send a text, image, or file message through the WeCom API",
		Long: `wecomctl sends one message per run to a WeCom (WeChat Work) user or to
@all: a text body, an uploaded image, or an uploaded file.

Credentials are read from the openclaw config (~/.openclaw/openclaw.json,
env.vars: WECOM_CORP_ID, WECOM_CORP_SECRET, WECOM_AGENT_ID, WECOM_PROXY).`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		Version:      version,
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			}
			if text == "" && imagePath == "" && filePath == "" {
				return errors.New("must provide a message, --image, or --file")
			}

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}

			client, err := wecom.New(wecom.ClientConfig{ProxyURL: cfg.ProxyURL, Logger: logger})
			if err != nil {
				return err
			}

			res, err := dispatch.New(cfg, client, logger).Run(cmd.Context(), dispatch.Request{
				Text:      text,
				ImagePath: imagePath,
				FilePath:  filePath,
				To:        to,
			})
			if err != nil {
				return err
			}

			data, err := json.Marshal(res)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to openclaw.json (default: ~/.openclaw/openclaw.json)")
	cmd.Flags().StringVar(&to, "to", dispatch.DefaultRecipient, "recipient UserId, or @all for every member")
	cmd.Flags().StringVar(&imagePath, "image", "", "send this image file")
	cmd.Flags().StringVar(&filePath, "file", "", "send this file")

	return cmd
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}
