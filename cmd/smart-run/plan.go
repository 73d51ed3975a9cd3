package main

import (
	"fmt"
	"os"

	"github.com/awaistahir/smart-run-planner/internal/engine"
	"github.com/awaistahir/smart-run-planner/internal/store"
	"github.com/awaistahir/smart-run-planner/internal/uiapi"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const strategyBoth = "both"

// planFile is an offline planning document, e.g.
//
//	prices: [0.5, 0.5, ...]   # 24 entries
//	budget_kw: 5
//	appliances:
//	  - name: washer
//	    power_kw: 1
//	    runtime_hours: 2
//	    window: {start: 8, end: 22}
//	    priority: 2
type planFile struct {
	Prices     []float64                 `yaml:"prices"`
	BudgetKW   float64                   `yaml:"budget_kw"`
	Appliances []engine.ApplianceRequest `yaml:"appliances"`
}

func loadPlanFile(path string, opts ...engine.Option) (*engine.Planner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("decoding plan file: %w", err)
	}

	p := engine.NewPlanner(opts...)
	if err := p.Register(pf.Prices, pf.BudgetKW); err != nil {
		return nil, err
	}
	for _, a := range pf.Appliances {
		if _, err := p.AddRequest(a); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (c *cli) planCmd() *cobra.Command {
	var strategy string
	var file string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate today's schedule for all appliances",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch strategy {
			case engine.StrategyGreedy, engine.StrategyExact, strategyBoth:
			default:
				return fmt.Errorf("unknown strategy %q (use greedy, exact or both)", strategy)
			}

			opts := []engine.Option{engine.WithLogger(c.log)}
			if strategy != engine.StrategyGreedy {
				exact, err := engine.OpenExact(c.cfg.Solver.Backend, c.cfg.Solver.Options(), c.log)
				if err != nil {
					return err
				}
				opts = append(opts, engine.WithExact(exact))
			}

			planner, err := c.planner(file, opts...)
			if err != nil {
				return err
			}
			if len(planner.Requests()) == 0 {
				c.log.Warnf("no appliances configured (use 'smart-run appliance add')")
			}

			ctx, cancel := c.runContext(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			if strategy == strategyBoth {
				exact, err := planner.RunExact(ctx)
				if err != nil {
					return err
				}
				greedy, err := planner.RunGreedy(ctx)
				if err != nil {
					return err
				}
				return writeJSON(out, uiapi.NewComparisonDocument(greedy, exact))
			}

			res, err := planner.Run(ctx, strategy)
			if err != nil {
				return err
			}
			for _, d := range res.Unscheduled() {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", d)
			}
			return writeJSON(out, uiapi.NewScheduleDocument(res))
		},
	}

	cmd.Flags().StringVarP(&strategy, "strategy", "s", engine.StrategyGreedy, "Scheduling strategy (greedy, exact or both)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Plan offline from a YAML document instead of the database")

	return cmd
}

func (c *cli) planner(file string, opts ...engine.Option) (*engine.Planner, error) {
	if file != "" {
		return loadPlanFile(file, opts...)
	}

	st, err := c.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	p, err := st.LoadPlanner(store.DefaultHousehold, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading plan: %w (run 'smart-run init' first)", err)
	}
	return p, nil
}
