// Command tapctl drives the terminal server from a shell: it runs a tap to pay
// session against the simulated SDK and calls the server endpoints directly.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/phonetap/phonetap-server/internal/config"
	"github.com/phonetap/phonetap-server/internal/logging"
	"github.com/phonetap/phonetap-server/session"
	"github.com/spf13/cobra"
)

var Version = "dev"

type globalOptions struct {
	serverURL    string
	sessionToken string
	timeout      time.Duration
	retries      int
	logLevel     string
}

func main() {
	config.LoadDotEnv()
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "tapctl",
		Short:   "tapctl - drive a PhoneTap terminal server",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup("DEV", opts.logLevel)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.serverURL, "server", "s", config.GetEnv("PHONETAP_SERVER", "http://localhost:3000"), "Terminal server base URL")
	flags.StringVar(&opts.sessionToken, "session-token", os.Getenv("PHONETAP_SESSION_TOKEN"), "Bearer session token when the server requires one")
	flags.DurationVar(&opts.timeout, "timeout", 20*time.Second, "Per request timeout")
	flags.IntVar(&opts.retries, "retries", 1, "Retries on network failure")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level")

	rootCmd.AddCommand(chargeCmd(opts))
	rootCmd.AddCommand(locationCmd(opts))
	rootCmd.AddCommand(tokenCmd(opts))
	rootCmd.AddCommand(onboardCmd(opts))
	rootCmd.AddCommand(compatCmd())
	rootCmd.AddCommand(sessionTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *globalOptions) backend() *session.HTTPBackend {
	return session.NewHTTPBackend(session.BackendConfig{
		BaseURL:      o.serverURL,
		Timeout:      o.timeout,
		Retries:      o.retries,
		SessionToken: o.sessionToken,
	})
}
