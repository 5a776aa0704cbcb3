package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zaytech/snapstore/pkg/apiclient"
	"github.com/zaytech/snapstore/pkg/ledger"
)

const (
	flagAPIURL      = "api-url"
	flagSessionFile = "session-file"
	flagName        = "name"
	flagPrice       = "price"
	flagCost        = "cost"
	flagAmount      = "amount"
	flagCategory    = "category"
	envPrefix       = "SNAPCTL"
	defaultAPIURL   = "http://localhost:9090"
)

type cliConfig struct {
	APIURL      string
	SessionFile string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "snapctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &cliConfig{}
	cmd := &cobra.Command{
		Use:           "snapctl",
		Short:         "Command line client for the snapstore dashboard API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}

	cmd.PersistentFlags().String(flagAPIURL, defaultAPIURL, "dashboard API base URL")
	cmd.PersistentFlags().String(flagSessionFile, "", "path of the stored session credentials")

	cmd.AddCommand(newLoginCommand(cfg))
	cmd.AddCommand(newLogoutCommand(cfg))
	cmd.AddCommand(newClientsCommand(cfg))
	cmd.AddCommand(newProductsCommand(cfg))

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *cliConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{flagAPIURL, flagSessionFile} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.APIURL = strings.TrimRight(strings.TrimSpace(v.GetString(flagAPIURL)), "/")
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	cfg.SessionFile = strings.TrimSpace(v.GetString(flagSessionFile))
	if cfg.SessionFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.SessionFile = filepath.Join(home, ".snapstore", "session.json")
	}
	return nil
}

func newSessionClient(cfg *cliConfig) (*apiclient.Client, *apiclient.FileStore, error) {
	store := apiclient.NewFileStore(cfg.SessionFile)
	client, err := apiclient.NewClient(apiclient.Config{
		BaseURL:     cfg.APIURL,
		Execution:   apiclient.ContextBrowser,
		Credentials: store,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, store, nil
}

func newLoginCommand(cfg *cliConfig) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:           "login",
		Short:         "Sign in and store the session credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return fmt.Errorf("username and password are required")
			}
			if err := os.MkdirAll(filepath.Dir(cfg.SessionFile), 0o700); err != nil {
				return fmt.Errorf("prepare session dir: %w", err)
			}
			client, store, err := newSessionClient(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			response, err := client.Post(ctx, "/sessions", map[string]string{
				"username": username,
				"password": password,
			})
			if err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
			var session struct {
				Token        string `json:"token"`
				RefreshToken string `json:"refreshToken"`
				User         struct {
					Name string `json:"name"`
				} `json:"user"`
			}
			if err := response.Decode(&session); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
			store.Save(apiclient.Credentials{
				AccessToken:  session.Token,
				RefreshToken: session.RefreshToken,
			})
			fmt.Printf("signed in as %s\n", session.User.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login username (required)")
	cmd.Flags().StringVar(&password, "password", "", "login password (required)")
	return cmd
}

func newLogoutCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Discard the stored session credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := apiclient.NewFileStore(cfg.SessionFile)
			store.Clear()
			fmt.Println("signed out")
			return nil
		},
	}
}

func newClientsCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:           "clients",
		Short:         "List clients with their ledger balances",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newSessionClient(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			response, err := client.Get(ctx, "/clients")
			if err != nil {
				return fmt.Errorf("list clients: %w", err)
			}
			var clients []ledger.Client
			if err := response.Decode(&clients); err != nil {
				return fmt.Errorf("decode clients: %w", err)
			}
			for _, entry := range clients {
				balance := entry.Balance()
				marker := "+"
				if balance.Indicator() == ledger.IndicatorNegative {
					marker = "-"
				}
				fmt.Printf("%s  %-30s %s %s\n", entry.ID, entry.Name, marker, ledger.FormatBRL(balance))
			}
			return nil
		},
	}
}

func newProductsCommand(cfg *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "products",
		Short:         "List catalog products",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newSessionClient(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			response, err := client.Get(ctx, "/products")
			if err != nil {
				return fmt.Errorf("list products: %w", err)
			}
			var products []struct {
				ID     string `json:"id"`
				Name   string `json:"name"`
				Slug   string `json:"slug"`
				Price  int64  `json:"price"`
				Amount int64  `json:"amount"`
			}
			if err := response.Decode(&products); err != nil {
				return fmt.Errorf("decode products: %w", err)
			}
			for _, product := range products {
				fmt.Printf("%s  %-30s %s  stock %d\n", product.ID, product.Name, ledger.FormatBRL(ledger.AmountCents(product.Price)), product.Amount)
			}
			return nil
		},
	}

	cmd.AddCommand(newProductAddCommand(cfg))
	return cmd
}

func newProductAddCommand(cfg *cliConfig) *cobra.Command {
	var name, category string
	var price, cost, amount int64
	cmd := &cobra.Command{
		Use:           "add",
		Short:         "Add a product to the catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("name is required")
			}
			client, _, err := newSessionClient(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			response, err := client.Post(ctx, "/products", map[string]any{
				"name":     name,
				"category": category,
				"price":    price,
				"cost":     cost,
				"amount":   amount,
			})
			if err != nil {
				return fmt.Errorf("add product: %w", err)
			}
			var product struct {
				ID   string `json:"id"`
				Slug string `json:"slug"`
			}
			if err := response.Decode(&product); err != nil {
				return fmt.Errorf("decode product: %w", err)
			}
			fmt.Printf("product %s created (slug %s)\n", product.ID, product.Slug)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, flagName, "", "product name (required)")
	cmd.Flags().StringVar(&category, flagCategory, "", "product category")
	cmd.Flags().Int64Var(&price, flagPrice, 0, "unit price in centavos")
	cmd.Flags().Int64Var(&cost, flagCost, 0, "unit cost in centavos")
	cmd.Flags().Int64Var(&amount, flagAmount, 0, "units in stock")
	return cmd
}
