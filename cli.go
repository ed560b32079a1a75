package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/sol-hydraulics/multisender/service/common"
	"github.com/sol-hydraulics/multisender/service/config"
	multisender_http "github.com/sol-hydraulics/multisender/service/http"
	"github.com/sol-hydraulics/multisender/service/resolver"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFilePath string

	root := &cobra.Command{
		Use:          "multisender",
		Short:        "Distribute SPL tokens to many wallets",
		SilenceUsage: true,
	}

	// If not set, ParseConfig will not try to load variables to environment from a file
	root.PersistentFlags().StringVar(&envFilePath, "envfile", "", "envfile path")

	loadConfig := func() (*config.Config, error) {
		return config.ParseConfig(&config.ConfigOptions{EnvFilePath: envFilePath})
	}

	root.AddCommand(
		newServeCmd(loadConfig),
		newSendCmd(loadConfig),
		newStatusCmd(loadConfig),
		newVersionCmd(),
	)

	return root
}

func newServeCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API and the distribution poller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

func newSendCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var (
		csvPath  string
		req      multisender_http.ReqCreateDistribution
		token    string
		sender   string
		wait     bool
		timeout  time.Duration
		decimals uint8
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Create a distribution from a CSV file of wallet,amount rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if req.TokenAddress, err = common.SolanaAddressFromString(token); err != nil {
				return fmt.Errorf("invalid --token: %w", err)
			}
			if req.SenderWallet, err = common.SolanaAddressFromString(sender); err != nil {
				return fmt.Errorf("invalid --sender: %w", err)
			}
			req.Decimals = decimals

			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()

			if req.Recipients, err = readRecipients(f); err != nil {
				return fmt.Errorf("error while reading %s: %w", csvPath, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			client := resolver.NewClient(cfg.APIBaseURL, resolver.Session{Token: cfg.AuthToken})

			created, err := client.CreateDistribution(ctx, req)
			if err != nil {
				return err
			}

			if !wait {
				return printJSON(cmd, created)
			}

			return waitAndPrint(ctx, cmd, cfg, client, created.ID, timeout)
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file with wallet,amount rows")
	cmd.Flags().StringVar(&token, "token", "", "mint address of the token")
	cmd.Flags().StringVar(&sender, "sender", "", "wallet the distribution is made for")
	cmd.Flags().Uint8Var(&decimals, "decimals", 9, "decimals of the token")
	cmd.Flags().StringVar(&req.TokenSymbol, "symbol", "", "token symbol")
	cmd.Flags().StringVar(&req.TokenName, "name", "", "token name")
	cmd.Flags().StringVar(&req.Priority, "priority", "", "priority tier (FAST, TURBO, ULTRA)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the distribution to finish")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait, defaults to MULTISENDER_STATUS_TIMEOUT")
	_ = cmd.MarkFlagRequired("csv")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("sender")

	return cmd
}

func newStatusCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Wait for a distribution to finish and print its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			client := resolver.NewClient(cfg.APIBaseURL, resolver.Session{Token: cfg.AuthToken})
			return waitAndPrint(ctx, cmd, cfg, client, id, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait, defaults to MULTISENDER_STATUS_TIMEOUT")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "v%s build on %s from sha1 %s\n", version, buildTime, sha1ver)
		},
	}
}

func waitAndPrint(ctx context.Context, cmd *cobra.Command, cfg *config.Config, source resolver.Source, id uuid.UUID, timeout time.Duration) error {
	if timeout == 0 {
		timeout = cfg.StatusTimeout
	}

	res, err := resolver.New(source, cfg.StatusPollInterval).Wait(ctx, id, timeout)
	if err != nil {
		return err
	}

	if res.StillProcessing {
		fmt.Fprintf(cmd.ErrOrStderr(), "distribution %s is still processing (%s)\n", id, res.Status)
	}

	if res.Job == nil {
		return fmt.Errorf("no status received for distribution %s", id)
	}

	return printJSON(cmd, res.Job)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
