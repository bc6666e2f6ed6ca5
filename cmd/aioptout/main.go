package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tomoyayamashita/ai-optout/internal/collector"
	"github.com/tomoyayamashita/ai-optout/internal/compliance"
	"github.com/tomoyayamashita/ai-optout/internal/config"
	"github.com/tomoyayamashita/ai-optout/internal/events"
	"github.com/tomoyayamashita/ai-optout/internal/logger"
	"github.com/tomoyayamashita/ai-optout/internal/metrics"
	"github.com/tomoyayamashita/ai-optout/internal/policy"
	"github.com/tomoyayamashita/ai-optout/internal/report"
	"github.com/tomoyayamashita/ai-optout/internal/template"
	"github.com/tomoyayamashita/ai-optout/internal/watch"
)

// Default config embedded into the binary
//
//go:embed default.yaml
var defaultConfigYAML []byte

var (
	// Global flags
	configPath  string
	logLevel    string
	region      string
	profile     string
	mode        string
	output      string
	concurrency int
)

// errCheckFailed signals a completed check whose verdict did not pass
var errCheckFailed = errors.New("compliance check failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errCheckFailed) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aioptout",
		Short: "AI Opt-Out - AWS Organizations AI services opt-out compliance",
		Long: `AI Opt-Out verifies that an AWS Organization opts every account out of
AI service data usage through an AI services opt-out policy attached to the root.`,
		Example: `  aioptout verify
  aioptout check --output json
  aioptout template --root-id r-abcd > ai-opt-out.yaml
  aioptout watch --schedule "0 * * * *"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.aioptout/config.yaml, then built-in)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "AWS region (overrides config)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "AWS shared config profile (overrides config)")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "Evaluation mode: strict or rule (overrides config)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "", "Output format: text, json, or rule (overrides config)")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "Parallel effective policy lookups (overrides config)")

	// Subcommands
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newTemplateCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newSelfCheckCmd())
	rootCmd.AddCommand(newPrintConfigCmd())

	return rootCmd
}

// loadConfig loads the config file and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath, defaultConfigYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if region != "" {
		cfg.AWS.Region = region
	}
	if profile != "" {
		cfg.AWS.Profile = profile
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if output != "" {
		cfg.Output = output
	}
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Logs go to stderr so stdout carries only the report
func newLogger() *logger.Logger {
	return logger.NewLogger(os.Stderr, logger.ParseLevel(logLevel))
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
	}
	if cfg.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// newChecker wires collector, engine and logger for one mode and depth
func newChecker(ctx context.Context, cfg *config.Config, m policy.Mode, depth collector.Depth, log *logger.Logger) (*compliance.Checker, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	source := collector.NewFromConfig(awsCfg, collector.Options{
		Concurrency: cfg.Concurrency,
		Depth:       depth,
	})
	return compliance.NewChecker(source, policy.NewEngine(m), log), nil
}

// runCheck performs one check and writes the report to stdout
func runCheck(cmd *cobra.Command, cfg *config.Config, m policy.Mode, depth collector.Depth) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := newLogger()
	checker, err := newChecker(ctx, cfg, m, depth, log)
	if err != nil {
		return err
	}

	run, err := checker.Run(ctx)
	if err != nil {
		if cfg.Output == config.OutputRule {
			// Same record the Config rule reports for a failed lookup
			_ = report.WriteRule(cmd.OutOrStdout(), report.ForError(err))
		}
		return err
	}

	if err := report.Write(cmd.OutOrStdout(), report.Format(cfg.Output), run); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if !run.Decision.Passed {
		return errCheckFailed
	}
	return nil
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the organization, its opt-out policies and every account",
		Long: `Verify reads the organization, its AI services opt-out policies, their
targets and content, and the effective policy of every active account.
Exits 2 if the check does not pass in the configured mode (default: strict).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			m, err := policy.ParseMode(cfg.Mode)
			if err != nil {
				return err
			}
			return runCheck(cmd, cfg, m, collector.DepthFull)
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Evaluate the Config rule locally",
		Long: `Check lists the AI services opt-out policies and their targets and prints
the same record the AWS Config rule reports. Exits 2 if NON_COMPLIANT.

Check always evaluates in rule mode and does not accept --mode; use verify
for strict mode.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("mode") {
				return errors.New("check always uses rule mode; --mode is not supported (use verify)")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if output == "" {
				cfg.Output = config.OutputRule
			}
			return runCheck(cmd, cfg, policy.ModeRule, collector.DepthPolicies)
		},
	}
}

func newTemplateCmd() *cobra.Command {
	var rootID, policyName string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print a CloudFormation template that deploys the opt-out policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if rootID != "" {
				cfg.Template.RootID = rootID
			}
			if policyName != "" {
				cfg.Template.PolicyName = policyName
			}

			return template.Render(cmd.OutOrStdout(), template.Options{
				PolicyName:  cfg.Template.PolicyName,
				Description: cfg.Template.Description,
				RootID:      cfg.Template.RootID,
			})
		},
	}

	cmd.Flags().StringVar(&rootID, "root-id", "", "Attach to an existing organization root instead of creating the organization")
	cmd.Flags().StringVar(&policyName, "policy-name", "", "Name of the opt-out policy")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the check on a schedule and export metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if schedule != "" {
				cfg.Watch.Schedule = schedule
			}
			m, err := policy.ParseMode(cfg.Mode)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := newLogger()
			checker, err := newChecker(ctx, cfg, m, collector.DepthFull, log)
			if err != nil {
				return err
			}

			emitters := []events.Emitter{events.NewLogEmitter(log)}
			if kafka := events.NewKafkaEmitter(cfg.Watch.KafkaBrokers, cfg.Watch.KafkaTopic); kafka != nil {
				defer kafka.Close()
				emitters = append(emitters, kafka)
			}

			runMetrics := metrics.New(nil)
			scheduler, err := watch.NewScheduler(cfg.Watch.Schedule, checker, runMetrics, events.NewMultiEmitter(emitters...), log)
			if err != nil {
				return err
			}

			if cfg.Watch.MetricsAddr != "" {
				srv := startMetricsServer(cfg.Watch.MetricsAddr, runMetrics, log)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			return scheduler.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule (overrides config)")
	return cmd
}

func startMetricsServer(addr string, m *metrics.Metrics, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics_server_started", fmt.Sprintf("Metrics listening on %s", addr), nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_server_failed", "Metrics server stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	return srv
}

func newSelfCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-check",
		Short: "Check configuration, AWS credentials and Organizations access",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("AI Opt-Out self-check")
			fmt.Println("=====================")

			cfg, err := loadConfig()
			if err != nil {
				fmt.Printf("❌ Failed to load config: %v\n", err)
				return err
			}
			fmt.Printf("✅ Config loaded (mode: %s, output: %s)\n", cfg.Mode, cfg.Output)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			awsCfg, err := loadAWSConfig(ctx, cfg)
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				return err
			}

			fmt.Println("\nTesting AWS credentials...")
			creds, err := awsCfg.Credentials.Retrieve(ctx)
			if err != nil {
				fmt.Printf("❌ Failed to resolve credentials: %v\n", err)
				return err
			}
			fmt.Printf("✅ Credentials resolved (source: %s, region: %s)\n", creds.Source, awsCfg.Region)

			fmt.Println("\nTesting AWS Organizations access...")
			out, err := organizations.NewFromConfig(awsCfg).DescribeOrganization(ctx, &organizations.DescribeOrganizationInput{})
			if err == nil && out.Organization == nil {
				err = collector.ErrOrganizationNotFound
			}
			if err != nil {
				fmt.Printf("❌ Failed to describe organization: %v\n", err)
				return err
			}
			fmt.Printf("✅ Organization found: %s\n", aws.ToString(out.Organization.Id))

			fmt.Println("\n✅ AI Opt-Out is ready to use!")
			return nil
		},
	}
}

func newPrintConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print-config",
		Short: "Print current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Printf("Config: %s\n", func() string {
				if configPath != "" {
					return configPath
				}
				return "[default lookup]"
			}())
			fmt.Printf("Log Level: %s\n\n", logger.ParseLevel(logLevel))

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
