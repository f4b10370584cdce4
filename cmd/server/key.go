package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ashureev/tutorlens/internal/domain"
	"github.com/ashureev/tutorlens/internal/shared"
	"github.com/ashureev/tutorlens/internal/store"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var (
	keyServer  string
	keyOffline bool
)

var errServerRejected = errors.New("server rejected settings update")

// keyCmd manages the stored API key.
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the stored API key",
	Long: `Manage the API key used for guidance requests.

Updates go through a running server's control API so the change applies
immediately. When no server is reachable, or with --offline, the settings
database is written directly and the change applies on next start.

Available subcommands:
  set    - Store an API key
  clear  - Remove the stored API key
  status - Show whether an API key is configured`,
}

var keySetCmd = &cobra.Command{
	Use:   "set <api-key>",
	Short: "Store an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateCredential(cmd, args[0])
	},
}

var keyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return updateCredential(cmd, "")
	},
}

var keyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether an API key is configured",
	Args:  cobra.NoArgs,
	RunE:  runKeyStatus,
}

func init() {
	keyCmd.PersistentFlags().StringVar(&keyServer, "server", "", "control API base URL (default http://localhost:$PORT)")
	keyCmd.PersistentFlags().BoolVar(&keyOffline, "offline", false, "write the settings database directly")
	keyCmd.AddCommand(keySetCmd, keyClearCmd, keyStatusCmd)
}

func controlURL() string {
	if keyServer != "" {
		return keyServer
	}
	return "http://localhost:" + cfg.Port
}

func updateCredential(cmd *cobra.Command, credential string) error {
	credential = domain.NormalizeCredential(credential)
	patch := domain.SettingsPatch{Credential: &credential}
	out := cmd.OutOrStdout()

	if !keyOffline {
		applied, err := putSettings(cmd.Context(), patch)
		if err == nil {
			fmt.Fprintf(out, "API key %s via %s (applied: %t)\n", keyAction(credential), controlURL(), applied)
			noteDefault(cmd, credential)
			return nil
		}
		if errors.Is(err, errServerRejected) {
			return err
		}
		logger.Warn("Control API unreachable, writing settings database directly", "error", err)
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open settings database: %w", err)
	}
	defer repo.Close()

	set, deleted := patch.Record()
	if len(set) > 0 {
		if err := repo.Set(cmd.Context(), set); err != nil {
			return fmt.Errorf("save API key: %w", err)
		}
	}
	if len(deleted) > 0 {
		if err := repo.Delete(cmd.Context(), deleted...); err != nil {
			return fmt.Errorf("clear API key: %w", err)
		}
	}
	fmt.Fprintf(out, "API key %s in %s\n", keyAction(credential), cfg.DBPath)
	noteDefault(cmd, credential)
	return nil
}

func noteDefault(cmd *cobra.Command, credential string) {
	if credential == "" && cfg.Defaults.HasCredential() {
		fmt.Fprintln(cmd.OutOrStdout(), "DEFAULT_CREDENTIAL remains in effect")
	}
}

func keyAction(credential string) string {
	if credential == "" {
		return "cleared"
	}
	return "stored"
}

func putSettings(ctx context.Context, patch domain.SettingsPatch) (bool, error) {
	var result struct {
		Applied *bool `json:"applied"`
	}
	resp, err := resty.New().
		SetTimeout(15*time.Second).
		R().
		SetContext(ctx).
		SetBody(patch).
		SetResult(&result).
		Put(controlURL() + controlPrefix + "/api/settings")
	if err != nil {
		return false, fmt.Errorf("put settings: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("%w: status %d: %s", errServerRejected, resp.StatusCode(), resp.String())
	}
	return result.Applied != nil && *result.Applied, nil
}

func runKeyStatus(cmd *cobra.Command, _ []string) error {
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open settings database: %w", err)
	}
	defer repo.Close()

	record, err := repo.Get(cmd.Context(), domain.KeyCredential)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	s := domain.SettingsFromRecord(cfg.Defaults, record)

	source := "none"
	switch {
	case domain.NormalizeCredential(record[domain.KeyCredential]) != "":
		source = "settings database"
	case cfg.Defaults.HasCredential():
		source = "DEFAULT_CREDENTIAL"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "API key: %s (source: %s)\n", shared.Redact(s.Credential), source)
	return nil
}
