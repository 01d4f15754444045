package main

import (
	"fmt"
	"net/url"
	"os"

	"wecomctl/internal/config"
	"wecomctl/internal/wecom"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	var online bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the WeCom configuration",
		Long: `Verifies that the openclaw config file exists, carries complete WeCom
credentials, and that the proxy URL (if any) parses. With --online it also
exchanges the credentials for an access token. No message is sent.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("wecomctl doctor v%s\n\n", version)

			passed := 0
			failed := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nResults: 0 passed, 1 failed\n")
				return fmt.Errorf("1 check(s) failed")
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Credentials complete
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Credentials", err.Error())
				fmt.Printf("\nResults: %d passed, 1 failed\n", passed)
				return fmt.Errorf("1 check(s) failed")
			}
			printPass("Credentials", fmt.Sprintf("corp %s, agent %d", cfg.CorpID, cfg.AgentID))
			passed++

			// 3. Proxy URL parses
			if cfg.ProxyURL != "" {
				if _, err := url.Parse(cfg.ProxyURL); err != nil {
					printFail("Proxy URL", err.Error())
					failed++
				} else {
					printPass("Proxy URL", cfg.ProxyURL)
					passed++
				}
			}

			// 4. Live token exchange
			if online {
				client, err := wecom.New(wecom.ClientConfig{ProxyURL: cfg.ProxyURL, Logger: logger})
				if err != nil {
					printFail("Token exchange", err.Error())
					failed++
				} else if _, err := client.AccessToken(cmd.Context(), cfg.CorpID, cfg.CorpSecret); err != nil {
					printFail("Token exchange", err.Error())
					failed++
				} else {
					printPass("Token exchange", "credentials accepted")
					passed++
				}
			}

			fmt.Printf("\nResults: %d passed, %d failed\n", passed, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&online, "online", false, "also perform a live token exchange")
	return cmd
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-14s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-14s %s\n", check, detail)
}
