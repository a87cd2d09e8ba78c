package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mferraretto/chatshopee22/internal/browser"
	"github.com/mferraretto/chatshopee22/internal/types"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

// loginCmd establishes the session interactively so the persistent Chrome
// profile carries the authentication afterwards. The 2FA code is read from
// stdin.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the console and persist the browser profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		log := slog.Default()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		session, err := browser.NewSession(ctx, browser.Options{
			URL:        cfg.Console.URL,
			Email:      cfg.Console.Email,
			Password:   cfg.Console.Password,
			Headless:   cfg.Console.Headless,
			ProfileDir: cfg.Console.ProfileDir,
			NavTimeout: time.Duration(cfg.Console.NavTimeoutMS) * time.Millisecond,
			OpTimeout:  time.Duration(cfg.Console.OpTimeoutMS) * time.Millisecond,
		}, log)
		if err != nil {
			return err
		}
		defer session.Close()

		if err := session.Establish(ctx); err != nil {
			return err
		}

		scanner := bufio.NewScanner(os.Stdin)
		for session.State() == types.SessionAwaitingTwoFactor {
			fmt.Print("Verification code (or empty to abort): ")
			if !scanner.Scan() {
				return fmt.Errorf("stdin closed before verification")
			}
			code := strings.TrimSpace(scanner.Text())
			if code == "" {
				return fmt.Errorf("login aborted")
			}

			ok, err := session.SubmitTwoFactorCode(ctx, code)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Code rejected, try again.")
			}
		}

		fmt.Println("Logged in. The browser profile now carries the session.")
		return nil
	},
}
