package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jedmorris/CRM-manager/internal/auth"
	"github.com/jedmorris/CRM-manager/internal/config"
)

var (
	flagUserID string
	flagEmail  string
	flagTTLMin int
)

// tokenCmd generates an HS256 JWT for testing/admin usage.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a JWT (HS256) for API authentication",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is empty; set it in config")
		}
		if flagUserID == "" {
			return fmt.Errorf("--user-id is required")
		}
		tok, err := auth.GenerateToken(flagUserID, flagEmail, cfg.JWT.Secret, time.Duration(flagTTLMin)*time.Minute)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&flagUserID, "user-id", "", "user id to embed in token")
	tokenCmd.Flags().StringVar(&flagEmail, "email", "", "email claim (optional)")
	tokenCmd.Flags().IntVar(&flagTTLMin, "ttl", 60, "token time-to-live in minutes")
}
