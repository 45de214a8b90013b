package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/relaydeck/streamgroup/internal/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "streamgroup-consumer",
	Short: "Run or exercise a streamgroup consumer-group member",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if envFile == "" {
			return
		}
		if _, err := os.Stat(envFile); err != nil {
			return
		}
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("warning: failed to load %s: %v", envFile, err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", config.EnvOrDefault("STREAMGROUP_ENV_FILE", ".env"), "path to a .env file to load before reading configuration")
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(publishCmd)
}
