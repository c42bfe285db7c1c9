package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/PNWBNW/Proven-National-Worker/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL    string
	cfgFile      string
	outputFormat string
	insecure     bool
	timeout      time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pnwctl",
	Short: "PNW settlement CLI",
	Long: `pnwctl is the operator command-line interface for the PNW settlement
service.

Log in once with 'pnwctl login'; the session token is kept in
~/.pnw/config.yaml and sent with every later command.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(configDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("PNW")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.pnw/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "settlement service URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text or json")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification (development only)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	rootCmd.AddCommand(loginCmd, logoutCmd, versionCmd)
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pnw"
	}
	return filepath.Join(home, ".pnw")
}

// newClient builds a client for --server carrying the stored token.
func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithTimeout(timeout), client.WithIdempotency()}
	if insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	if tok := viper.GetString("token"); tok != "" {
		opts = append(opts, client.WithBearerToken(tok))
	}
	return client.New(serverURL, opts...)
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// printResult writes v as indented JSON with -o json, otherwise runs text.
func printResult(v any, text func()) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

// ── login ────────────────────────────────────────────────────────────────────

var loginPassword string

var loginCmd = &cobra.Command{
	Use:   "login <operator-name>",
	Short: "Log in as an operator and store the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pw := loginPassword
		if pw == "" {
			pw = os.Getenv("PNW_PASSWORD")
		}
		if pw == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			pw = strings.TrimSpace(line)
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()
		res, err := c.Login(ctx, args[0], pw)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}

		viper.Set("server_url", serverURL)
		viper.Set("token", res.Token)
		if err := writeConfig(); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s (%s)\n", res.Operator.Name, res.Operator.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		viper.Set("token", "")
		return writeConfig()
	},
}

func writeConfig() error {
	path := viper.ConfigFileUsed()
	if path == "" {
		if err := os.MkdirAll(configDir(), 0o700); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		path = filepath.Join(configDir(), "config.yaml")
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(path, 0o600)
}

func init() {
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "operator password (prompted when omitted; PNW_PASSWORD also works)")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pnwctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pnwctl %s\n", version)
	},
}
