package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zpdzap/wsport/internal/config"
)

func initCmd() *cobra.Command {
	var stackDir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file for the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, err := os.Getwd()
			if err != nil {
				return err
			}

			if config.Exists(projectDir) {
				fmt.Println("wsport already initialized in this directory.")
				return nil
			}

			if stackDir == "" {
				stackDir = projectDir
			}
			detection := config.Detect(stackDir)

			settings := config.DefaultSettings()
			settings.Version = config.SettingsVers
			if len(detection.Services) > 0 {
				settings.Stack.Services = detection.Services
			}

			if err := config.Save(projectDir, &settings); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}

			if err := updateGitignore(projectDir, &settings); err != nil {
				return fmt.Errorf("updating .gitignore: %w", err)
			}

			fmt.Printf("Initialized wsport in %s\n", projectDir)
			fmt.Printf("  Settings: %s/%s\n", config.Dir, config.ConfigFile)
			if detection.Found() {
				fmt.Printf("  Compose stack: %s (services: %s)\n",
					filepath.Join(stackDir, detection.ComposeFile), strings.Join(settings.Stack.Services, ", "))
				if !detection.HasTargetKey {
					fmt.Printf("  Warning: %s has no %s entry yet\n", settings.Stack.EnvFile, settings.Stack.TargetKey)
				}
				fmt.Printf("\nSet DOCKER_PATH=%s to restart the stack after each renewal.\n", stackDir)
			} else {
				fmt.Println("  No compose stack found; only qBittorrent will be updated.")
			}
			fmt.Println("\nRun `wsport run` to request a new port.")
			return nil
		},
	}
	cmd.Flags().StringVar(&stackDir, "stack", "", "directory of the docker compose stack to inspect (default current directory)")
	return cmd
}

func updateGitignore(projectDir string, s *config.Settings) error {
	gitignorePath := filepath.Join(projectDir, ".gitignore")

	entries := []string{
		config.Dir + "/" + config.StateFile,
		strings.TrimSuffix(s.Diagnostics.ScreenshotDir, "/") + "/",
		s.Diagnostics.LogFile,
		config.DefaultEnv,
	}

	existing, _ := os.ReadFile(gitignorePath)
	content := string(existing)

	var toAdd []string
	for _, entry := range entries {
		if entry == "" || entry == "/" || strings.Contains(content, entry) {
			continue
		}
		toAdd = append(toAdd, entry)
	}

	if len(toAdd) == 0 {
		return nil
	}

	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	content += "\n# wsport\n"
	for _, entry := range toAdd {
		content += entry + "\n"
	}

	return os.WriteFile(gitignorePath, []byte(content), 0o644)
}
