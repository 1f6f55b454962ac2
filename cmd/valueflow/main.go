// Command valueflow runs value rollups, income shares and distributions
// over a scenario file.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/xraph/valueflow"
	"github.com/xraph/valueflow/store/memory"
	"github.com/xraph/valueflow/types"
	"github.com/xraph/valueflow/valueequation"
)

var version = "0.1.0"

// Global flags
var (
	scenarioPath string
	outputFormat string
	verbose      bool
	maxDepth     int
)

// Command flags
var (
	targetResource string
	targetQuantity string
	distAmount     string
	distPreview    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "valueflow",
		Short: "Value rollup and contribution-based income distribution",
		Long: `valueflow records a scenario's economic graph in memory and runs the
engine over it.

A scenario file (YAML, TOML or JSON) lists resources, processes, exchanges
and events by name, a value equation, a target resource and a distribution.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file (yaml, toml or json)")
	root.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table or json")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine activity to stderr")
	root.PersistentFlags().IntVar(&maxDepth, "max-depth", 64, "traversal depth bound")
	_ = root.MarkPersistentFlagRequired("scenario")

	rollupCmd := &cobra.Command{
		Use:   "rollup",
		Short: "Resolve the value per unit of the target resource",
		RunE:  runRollup,
	}
	rollupCmd.Flags().StringVar(&targetResource, "resource", "", "resource name (overrides target.resource)")

	sharesCmd := &cobra.Command{
		Use:   "shares",
		Short: "Attribute a delivered quantity's value to contributing events",
		RunE:  runShares,
	}
	sharesCmd.Flags().StringVar(&targetResource, "resource", "", "resource name (overrides target.resource)")
	sharesCmd.Flags().StringVar(&targetQuantity, "quantity", "", "delivered quantity (overrides target.quantity)")

	distributeCmd := &cobra.Command{
		Use:   "distribute",
		Short: "Distribute an amount through the value equation",
		RunE:  runDistribute,
	}
	distributeCmd.Flags().StringVar(&distAmount, "amount", "", "amount to distribute (overrides distribution.amount)")
	distributeCmd.Flags().BoolVar(&distPreview, "preview", false, "plan the run without persisting claims")

	root.AddCommand(rollupCmd, sharesCmd, distributeCmd)
	return root
}

// session is a started engine over a memory store holding the scenario.
type session struct {
	scenario *Scenario
	engine   *valueflow.Engine
	world    *world
}

func openSession(ctx context.Context, stderr io.Writer) (*session, error) {
	s, err := loadScenario(scenarioPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	st := memory.New()
	engine := valueflow.New(st,
		valueflow.WithLogger(logger),
		valueflow.WithMaxDepth(maxDepth),
	)
	if err := engine.Start(ctx); err != nil {
		return nil, err
	}

	w, err := s.build(ctx, st)
	if err != nil {
		_ = engine.Stop()
		return nil, err
	}
	return &session{scenario: s, engine: engine, world: w}, nil
}

func (s *session) close() { _ = s.engine.Stop() }

// valueEquation stores the scenario's value equation and returns it with
// each bucket's filter keyed by its assigned ID.
func (s *session) valueEquation(ctx context.Context) (*valueequation.ValueEquation, map[string]valueequation.Filter, error) {
	ve, filters, err := s.world.equation(s.scenario)
	if err != nil {
		return nil, nil, err
	}
	if err := s.engine.CreateValueEquation(ctx, ve); err != nil {
		return nil, nil, err
	}
	byID := make(map[string]valueequation.Filter, len(filters))
	for i, f := range filters {
		byID[ve.Buckets[i].ID.String()] = f
	}
	return ve, byID, nil
}

func (s *session) target() (string, decimal.Decimal, error) {
	name := targetResource
	qty := decimal.Zero
	if t := s.scenario.Target; t != nil {
		if name == "" {
			name = t.Resource
		}
		qty = t.Quantity
	}
	if targetQuantity != "" {
		q, err := decimal.NewFromString(targetQuantity)
		if err != nil {
			return "", qty, fmt.Errorf("invalid --quantity: %w", err)
		}
		qty = q
	}
	if name == "" {
		return "", qty, fmt.Errorf("no target resource: set target.resource or --resource")
	}
	return name, qty, nil
}

func runRollup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close()

	name, _, err := s.target()
	if err != nil {
		return err
	}
	res, ok := s.world.resources[name]
	if !ok {
		return fmt.Errorf("unknown resource %q", name)
	}

	var ve *valueequation.ValueEquation
	if s.scenario.ValueEquation != nil {
		if ve, _, err = s.valueEquation(ctx); err != nil {
			return err
		}
	}

	result, err := s.engine.RollUpValue(ctx, res.ID, ve)
	if err != nil {
		return err
	}
	return newPrinter(cmd.OutOrStdout(), s.world).rollup(name, result)
}

func runShares(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close()

	name, qty, err := s.target()
	if err != nil {
		return err
	}
	res, ok := s.world.resources[name]
	if !ok {
		return fmt.Errorf("unknown resource %q", name)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("shares need a positive quantity: set target.quantity or --quantity")
	}

	ve, _, err := s.valueEquation(ctx)
	if err != nil {
		return err
	}
	shares, err := s.engine.ComputeIncomeShares(ctx, ve, res.ID, qty)
	if err != nil {
		return err
	}
	return newPrinter(cmd.OutOrStdout(), s.world).shares(shares)
}

func runDistribute(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close()

	in, err := s.runInput(ctx)
	if err != nil {
		return err
	}

	run := s.engine.RunValueEquation
	if distPreview {
		run = s.engine.PreviewValueEquation
	}
	result, err := run(ctx, in)
	if err != nil {
		return err
	}
	return newPrinter(cmd.OutOrStdout(), s.world).distribution(result)
}

func (s *session) runInput(ctx context.Context) (valueflow.RunInput, error) {
	var in valueflow.RunInput
	spec := s.scenario.Distribution
	if spec == nil {
		spec = &distributeSpec{}
	}

	ve, filters, err := s.valueEquation(ctx)
	if err != nil {
		return in, err
	}
	in.ValueEquationID = ve.ID
	in.Filters = filters
	in.Currency = s.scenario.Currency
	in.Amount = spec.Amount
	in.RequireDisbursement = spec.RequireDisbursement

	if distAmount != "" {
		m, err := types.Parse(distAmount, in.Currency)
		if err != nil {
			return in, fmt.Errorf("invalid --amount: %w", err)
		}
		in.Amount = m.Amount
	}
	if in.Date, err = parseDate(spec.Date); err != nil {
		return in, err
	}
	if in.Date.IsZero() {
		in.Date = time.Now().UTC()
	}
	if in.IncomeEventIDs, err = s.world.incomeEvents(spec.Income); err != nil {
		return in, err
	}
	if spec.Funding != "" {
		res, ok := s.world.resources[spec.Funding]
		if !ok {
			return in, fmt.Errorf("unknown funding resource %q", spec.Funding)
		}
		in.FundingResourceID = res.ID
	}
	return in, nil
}
