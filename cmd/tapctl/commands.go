package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/phonetap/phonetap-server/internal/config"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/phonetap/phonetap-server/server/sessiontoken"
	"github.com/phonetap/phonetap-server/session"
	"github.com/spf13/cobra"
)

const defaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1"

func chargeCmd(opts *globalOptions) *cobra.Command {
	var (
		amount         float64
		currency       string
		readers        int
		allowSimulated bool
		finalStatus    string
		userAgent      string
		insecure       bool
		disconnect     bool
	)

	cmd := &cobra.Command{
		Use:   "charge",
		Short: "Discover, connect and charge through a simulated reader",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var sdk *session.SimulatedSDK
			factory := session.SimulatedFactory(func(s *session.SimulatedSDK) {
				sdk = s
				s.FinalStatus = platform.PaymentIntentStatus(finalStatus)
				if disconnect {
					s.OnCollect = s.Disconnect
				}
			}, simulatedReaders(readers)...)

			options := []session.Option{
				session.WithSimulatedReader(allowSimulated),
				session.WithSimulatedDiscovery(true),
			}
			if userAgent == "" {
				options = append(options, session.WithoutCompatibilityCheck())
			} else {
				options = append(options, session.WithDevice(session.Device{UserAgent: userAgent, Secure: !insecure}))
			}
			sess := session.New(factory, opts.backend(), options...)
			defer sess.Close(context.Background())

			if err := sess.Initialize(ctx); err != nil {
				return report(sess, err)
			}
			go sess.Watch(ctx)

			reader, err := sess.Start(ctx)
			if err != nil {
				return report(sess, err)
			}
			fmt.Printf("Connected to %s (%s)\n", reader.Label, reader.ID)

			pi, err := sess.Charge(ctx, amount, currency)
			if err != nil {
				return report(sess, err)
			}
			fmt.Printf("Charged %s: %s\n", pi.ID, pi.Status)
			if sdk != nil {
				fmt.Printf("Connection tokens fetched: %d\n", sdk.TokensFetched())
			}
			return report(sess, nil)
		},
	}

	cmd.Flags().Float64VarP(&amount, "amount", "a", 0, "Amount in major currency units")
	cmd.Flags().StringVarP(&currency, "currency", "c", session.DefaultCurrency, "ISO currency code")
	cmd.Flags().IntVar(&readers, "readers", 0, "Number of readers the simulated SDK discovers")
	cmd.Flags().BoolVar(&allowSimulated, "allow-simulated-reader", true, "Use a placeholder reader when none are discovered")
	cmd.Flags().StringVar(&finalStatus, "final-status", string(platform.PaymentIntentSucceeded), "Status the simulated SDK reports after processing")
	cmd.Flags().StringVar(&userAgent, "user-agent", "", "Check device compatibility for this user agent")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "Treat the host as a non secure context")
	cmd.Flags().BoolVar(&disconnect, "disconnect", false, "Drop the reader while the payment method is collected")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func simulatedReaders(n int) []session.Reader {
	readers := make([]session.Reader, 0, n)
	for i := 1; i <= n; i++ {
		readers = append(readers, session.Reader{
			ID:         fmt.Sprintf("tmr_simulated_%d", i),
			Label:      fmt.Sprintf("Simulated reader %d", i),
			DeviceType: session.DeviceTypeTapToPay,
			Status:     session.ReaderOnline,
		})
	}
	return readers
}

type sessionReport struct {
	Session string          `json:"session"`
	State   session.State   `json:"state"`
	Reader  *session.Reader `json:"reader,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func report(sess *session.Session, err error) error {
	snap := sess.Snapshot()
	out := sessionReport{Session: snap.ID, State: snap.State, Reader: snap.Reader, Reason: snap.Reason}
	if err != nil {
		out.Error = err.Error()
	}
	printJSON(out)
	return err
}

func locationCmd(opts *globalOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Resolve the terminal location",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := opts.backend()
			resolve := backend.Location
			if refresh {
				resolve = backend.RefreshLocation
			}
			loc, err := resolve(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(loc)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Drop the server's cached location first")
	return cmd
}

func tokenCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connection-token",
		Short: "Issue a connection token",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := opts.backend().ConnectionToken(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(secret)
			return nil
		},
	}
}

func onboardCmd(opts *globalOptions) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Create a connected account and print its onboarding link",
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := opts.backend().CreateAccount(cmd.Context(), email, name)
			if err != nil {
				return err
			}
			printJSON(acct)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Account holder name")
	return cmd
}

func compatCmd() *cobra.Command {
	var userAgent, platformName string
	var insecure, nfc bool
	cmd := &cobra.Command{
		Use:   "compat",
		Short: "Report tap to pay compatibility for a user agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			printJSON(session.CheckCompatibility(session.Device{
				UserAgent: userAgent,
				Platform:  platformName,
				Secure:    !insecure,
				HasNFC:    nfc,
			}))
			return nil
		},
	}
	cmd.Flags().StringVar(&userAgent, "user-agent", defaultUserAgent, "User agent to check")
	cmd.Flags().StringVar(&platformName, "platform", "iPhone", "navigator.platform value")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "Not a secure context")
	cmd.Flags().BoolVar(&nfc, "nfc", false, "Web NFC is present")
	return cmd
}

func sessionTokenCmd() *cobra.Command {
	var subject, email string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "session-token",
		Short: "Mint a development session token with SESSION_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := config.New()
			if ttl <= 0 {
				ttl = c.GetSessionTokenExpiry()
			}
			token, err := sessiontoken.Issue(c.GetSessionSigningKey(), subject, email, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "dev-merchant", "Merchant id")
	cmd.Flags().StringVar(&email, "email", "", "Merchant email")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime, defaults to SESSION_TOKEN_EXPIRY")
	return cmd
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
	}
}
