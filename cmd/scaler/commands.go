package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"recipe-scaler/internal/core/pipeline"
	"recipe-scaler/internal/core/recipe"
	"recipe-scaler/internal/core/shopping"
	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/infrastructure/container"
	"recipe-scaler/internal/pkg/common"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app 每次執行共用的設定，由 PersistentPreRunE 填入
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "scaler",
		Short:         "Scale a recipe into a shopping list for a number of meals",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := common.InitLogger(cfg.LogLevel, cfg.LogDir); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	root.AddCommand(a.planCmd(), a.analyzeCmd(), a.resolveCmd())
	return root
}

// build 建立服務容器，resolve 為 true 時強制啟用零售搜尋
func (a *app) build(ctx context.Context, resolve bool, opts ...container.Option) (*container.Container, error) {
	cfg := *a.cfg
	if resolve {
		cfg.Retail.Enabled = true
	}
	return container.Build(ctx, &cfg, opts...)
}

func (a *app) planCmd() *cobra.Command {
	var (
		meals   int
		output  string
		resolve bool
	)

	cmd := &cobra.Command{
		Use:   "plan <recipe text or url>",
		Short: "Analyze, scale and save a recipe shopping list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if output == "" {
				output = a.cfg.Storage.OutputPath
			}

			c, err := a.build(ctx, resolve)
			if err != nil {
				return err
			}
			defer closeContainer(c)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Analyzing recipe...")
			result, err := c.Pipeline.Run(ctx, pipeline.Request{
				Recipe:      args[0],
				TargetMeals: meals,
				Resolve:     resolve,
				Progress:    progressPrinter(out),
			})
			if err != nil {
				return err
			}

			for _, issue := range result.Issues {
				fmt.Fprintf(out, "Skipped record: %s\n", issue.Error())
			}
			if err := pipeline.WriteReport(out, result.Document); err != nil {
				return err
			}
			if err := pipeline.SaveDocument(output, result.Document); err != nil {
				return err
			}

			fmt.Fprintf(out, "\nSaved to %s\n", output)
			if result.ID != "" {
				fmt.Fprintf(out, "Plan ID: %s\n", result.ID)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&meals, "meals", "m", recipe.DefaultTargetMeals, "number of meals to scale to")
	cmd.Flags().StringVarP(&output, "output", "o", "", "shopping list output path (default from storage.output_path)")
	cmd.Flags().BoolVar(&resolve, "resolve", false, "search the retailer for each scaled ingredient")
	return cmd
}

func (a *app) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <recipe text or url>",
		Short: "Print the normalized recipe analysis as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.build(ctx, false)
			if err != nil {
				return err
			}
			defer closeContainer(c)

			analysis, issues, err := c.Pipeline.Analyze(ctx, args[0])
			if err != nil {
				return err
			}
			for _, issue := range issues {
				fmt.Fprintf(cmd.ErrOrStderr(), "Skipped record: %s\n", issue.Error())
			}

			data, err := common.ToIndentedJSON(analysis)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

func (a *app) resolveCmd() *cobra.Command {
	var from, output string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Search the retailer for a saved shopping list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if from == "" {
				from = a.cfg.Storage.OutputPath
			}
			if output == "" {
				output = from
			}

			doc, err := pipeline.LoadDocument(from)
			if err != nil {
				return err
			}

			// 只搜尋零售商品，不需要推論服務
			c, err := a.build(ctx, true, container.WithoutOracle())
			if err != nil {
				return err
			}
			defer closeContainer(c)

			out := cmd.OutOrStdout()
			if err := c.Pipeline.Resolve(ctx, doc, progressPrinter(out)); err != nil {
				return err
			}
			if err := pipeline.WriteReport(out, doc); err != nil {
				return err
			}
			if err := pipeline.SaveDocument(output, doc); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nSaved to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&from, "from", "f", "", "saved shopping list to resolve (default from storage.output_path)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default overwrites --from)")
	return cmd
}

// progressPrinter 依完成順序輸出搜尋進度
func progressPrinter(w io.Writer) shopping.ProgressFunc {
	var mu sync.Mutex
	return func(done, total int, match recipe.ProductMatch) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "Searching for %s... (%d/%d)\n", match.Ingredient.Name, done, total)
	}
}

func closeContainer(c *container.Container) {
	if err := c.Close(); err != nil {
		common.LogWarn("Failed to release resources", zap.Error(err))
	}
}
