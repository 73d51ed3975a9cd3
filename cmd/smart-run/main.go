package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/awaistahir/smart-run-planner/internal/config"
	"github.com/awaistahir/smart-run-planner/internal/engine"
	"github.com/awaistahir/smart-run-planner/internal/logger"
	"github.com/awaistahir/smart-run-planner/internal/prices"
	"github.com/awaistahir/smart-run-planner/internal/store"
	"github.com/spf13/cobra"
)

// cli carries the state shared by every subcommand after flags are parsed.
type cli struct {
	cfgFile string
	dbPath  string

	cfg *config.Config
	log logger.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "smart-run",
		Short: "SmartRun - Schedule appliances against a daily price curve and power budget",
		Long: `SmartRun plans when each household appliance should run today so the
electricity bill is as low as possible without exceeding the power budget.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.smartrun/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&c.dbPath, "db", "", "database path (default is $HOME/.smartrun/smartrun.db)")

	rootCmd.AddCommand(c.initCmd())
	rootCmd.AddCommand(c.tariffCmd())
	rootCmd.AddCommand(c.applianceCmd())
	rootCmd.AddCommand(c.planCmd())

	return rootCmd
}

func (c *cli) initConfig() error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	if c.dbPath != "" {
		cfg.DBPath = c.dbPath
	}
	c.cfg = cfg
	// stdout carries JSON documents, so logs go to stderr.
	c.log = logger.NewWithWriter(os.Stderr, "cli", cfg.Log.Level)
	return nil
}

func (c *cli) openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(c.cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return store.NewStore(c.cfg.DBPath)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) initCmd() *cobra.Command {
	var template string
	var budget float64
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize SmartRun with a template tariff",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if _, err := st.GetTariff(store.DefaultHousehold); err == nil && !force {
				fmt.Fprintf(out, "Tariff already configured in %s (use --force to replace it)\n", c.cfg.DBPath)
				return nil
			}

			curve, err := prices.Template(template)
			if err != nil {
				return err
			}
			t := &store.Tariff{Prices: curve.Values(), BudgetKW: budget, Region: c.cfg.Region}
			if err := st.SaveTariff(store.DefaultHousehold, t); err != nil {
				return err
			}

			fmt.Fprintf(out, "✓ Initialized %s tariff with %.1f kW budget\n", template, budget)
			fmt.Fprintf(out, "Database: %s\n", c.cfg.DBPath)
			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintln(out, "  1. Add appliances: smart-run appliance add")
			fmt.Fprintln(out, "  2. Generate plan: smart-run plan")
			return nil
		},
	}

	cmd.Flags().StringVarP(&template, "template", "t", prices.TemplatePeakValley, "Tariff template ("+strings.Join(prices.Templates(), ", ")+")")
	cmd.Flags().Float64VarP(&budget, "budget", "b", 5.0, "Power budget in kW")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing tariff")

	return cmd
}

func (c *cli) tariffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tariff",
		Short: "Manage the price curve and power budget",
	}

	cmd.AddCommand(c.tariffShowCmd())
	cmd.AddCommand(c.tariffSetCmd())
	cmd.AddCommand(c.tariffTemplateCmd())
	cmd.AddCommand(c.tariffFetchCmd())

	return cmd
}

func (c *cli) tariffShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored tariff",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			t, err := st.GetTariff(store.DefaultHousehold)
			if err != nil {
				return fmt.Errorf("getting tariff: %w (run 'smart-run init' first)", err)
			}
			return writeJSON(cmd.OutOrStdout(), t)
		},
	}
}

// saveTariff stores prices, keeping the current budget and region when the
// caller passes zero values.
func (c *cli) saveTariff(st *store.Store, curve []float64, budget float64, region string) (*store.Tariff, error) {
	current, err := st.GetTariff(store.DefaultHousehold)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if current != nil {
		if budget == 0 {
			budget = current.BudgetKW
		}
		if region == "" {
			region = current.Region
		}
	}
	if region == "" {
		region = c.cfg.Region
	}

	t := &store.Tariff{Prices: curve, BudgetKW: budget, Region: region}
	if err := st.SaveTariff(store.DefaultHousehold, t); err != nil {
		return nil, err
	}
	return t, nil
}

func parsePrices(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	out := make([]float64, 0, len(fields))
	for i, f := range fields {
		p, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("price %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *cli) tariffSetCmd() *cobra.Command {
	var priceList string
	var budget float64

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the 24 hourly prices and the power budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			var curve []float64
			if priceList != "" {
				if curve, err = parsePrices(priceList); err != nil {
					return err
				}
			} else {
				current, err := st.GetTariff(store.DefaultHousehold)
				if err != nil {
					return fmt.Errorf("--prices is required when no tariff is stored: %w", err)
				}
				curve = current.Prices
			}

			t, err := c.saveTariff(st, curve, budget, "")
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), t)
		},
	}

	cmd.Flags().StringVarP(&priceList, "prices", "p", "", "24 comma-separated hourly prices")
	cmd.Flags().Float64VarP(&budget, "budget", "b", 0, "Power budget in kW (default keeps the current one)")

	return cmd
}

func (c *cli) tariffTemplateCmd() *cobra.Command {
	var budget float64

	cmd := &cobra.Command{
		Use:       "template NAME",
		Short:     "Apply a named tariff template",
		Args:      cobra.ExactArgs(1),
		ValidArgs: prices.Templates(),
		RunE: func(cmd *cobra.Command, args []string) error {
			curve, err := prices.Template(args[0])
			if err != nil {
				return err
			}

			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			t, err := c.saveTariff(st, curve.Values(), budget, "")
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), t)
		},
	}

	cmd.Flags().Float64VarP(&budget, "budget", "b", 0, "Power budget in kW (default keeps the current one)")

	return cmd
}

func (c *cli) tariffFetchCmd() *cobra.Command {
	var region string
	var date string
	var budget float64

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch today's hourly prices from Octopus Agile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if region == "" {
				region = c.cfg.Region
			}

			day := time.Now()
			if date != "today" {
				var err error
				day, err = time.ParseInLocation("2006-01-02", date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
				}
			}

			client := prices.NewOctopusClient(region)
			curve, err := client.HourlyCurve(cmd.Context(), day)
			if err != nil {
				return err
			}
			c.log.Infof("fetched Agile prices for region %s on %s", region, day.Format("2006-01-02"))

			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			t, err := c.saveTariff(st, curve.Values(), budget, region)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), t)
		},
	}

	cmd.Flags().StringVarP(&region, "region", "r", "", "Octopus region (A-P, default from config)")
	cmd.Flags().StringVarP(&date, "date", "d", "today", "Date to fetch (YYYY-MM-DD or 'today')")
	cmd.Flags().Float64VarP(&budget, "budget", "b", 0, "Power budget in kW (default keeps the current one)")

	return cmd
}

func (c *cli) applianceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appliance",
		Short: "Manage appliances",
	}

	cmd.AddCommand(c.applianceAddCmd())
	cmd.AddCommand(c.applianceListCmd())
	cmd.AddCommand(c.applianceRemoveCmd())

	return cmd
}

func (c *cli) applianceAddCmd() *cobra.Command {
	var req engine.ApplianceRequest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new appliance",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			appliance := &store.Appliance{ApplianceRequest: req}
			if err := st.SaveAppliance(appliance, store.DefaultHousehold); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Added appliance: %s\n", req.Name)
			fmt.Fprintf(out, "  ID: %s\n", appliance.ID)
			fmt.Fprintf(out, "  Power: %.2f kW for %dh\n", req.PowerKW, req.Runtime)
			fmt.Fprintf(out, "  Window: %s\n", req.Window)
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Name, "name", "n", "", "Appliance name (required)")
	cmd.Flags().Float64VarP(&req.PowerKW, "power", "p", 1.0, "Power draw in kW")
	cmd.Flags().IntVarP(&req.Runtime, "runtime", "r", 1, "Runtime in whole hours")
	cmd.Flags().IntVar(&req.Window.Start, "start", 0, "Earliest start hour (0-23)")
	cmd.Flags().IntVar(&req.Window.End, "end", 23, "Latest running hour (0-23, below --start wraps past midnight)")
	cmd.Flags().BoolVar(&req.Fixed, "fixed", false, "Must start exactly at --start")
	cmd.Flags().IntVar(&req.Priority, "priority", 0, "Greedy placement priority, higher first")

	cmd.MarkFlagRequired("name")

	return cmd
}

func (c *cli) applianceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all appliances",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			appliances, err := st.GetAppliances(store.DefaultHousehold)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(appliances) == 0 {
				fmt.Fprintln(out, "No appliances configured")
				return nil
			}

			fmt.Fprintf(out, "%-20s %-10s %8s %8s %-13s %6s %8s\n", "NAME", "ID", "KW", "HOURS", "WINDOW", "FIXED", "PRIORITY")
			fmt.Fprintln(out, "--------------------------------------------------------------------------------")

			for _, a := range appliances {
				fixed := "No"
				if a.Fixed {
					fixed = "Yes"
				}
				fmt.Fprintf(out, "%-20s %-10s %8.2f %8d %-13s %6s %8d\n",
					a.Name, a.ID[:min(8, len(a.ID))], a.PowerKW, a.Runtime, a.Window, fixed, a.Priority)
			}

			return nil
		},
	}
}

func (c *cli) applianceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID|NAME",
		Short: "Remove an appliance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			id := args[0]
			appliances, err := st.GetAppliances(store.DefaultHousehold)
			if err != nil {
				return err
			}
			for _, a := range appliances {
				if a.Name == args[0] {
					id = a.ID
					break
				}
			}

			if err := st.DeleteAppliance(id, store.DefaultHousehold); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed appliance: %s\n", args[0])
			return nil
		},
	}
}

// runContext bounds a planning run by the configured solver timeout.
func (c *cli) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, c.cfg.Solver.Timeout)
}
