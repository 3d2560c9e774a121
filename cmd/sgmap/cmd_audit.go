package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/sgmap/internal/adapter/aws"
	"github.com/yairfalse/sgmap/internal/audit"
	"github.com/yairfalse/sgmap/internal/classify"
	"github.com/yairfalse/sgmap/internal/config"
	"github.com/yairfalse/sgmap/internal/emitter"
	"github.com/yairfalse/sgmap/internal/filter"
	"github.com/yairfalse/sgmap/internal/telemetry"
	"github.com/yairfalse/sgmap/pkg/resource"
)

// auditFlags holds command-line overrides for the config file.
type auditFlags struct {
	configPath string
	regions    []string
	groups     []string
	profile    string
	keysCSV    string
	formats    []string
	outFile    string
	baseline   string
	promFile   string
	exclude    []string
	failFast   bool
	debug      bool
}

var auditOpts auditFlags

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report which services use each security group",
	Long: `Audit security groups in one or more regions.

For every group, sgmap lists the network interfaces it governs,
classifies them by the service that most likely created them, and
resolves the resource names through each service's API.

Failures are isolated per region, group and service; the exit code
is 2 when the report is incomplete.`,
	Example: `  sgmap audit -r us-east-1                    # Every group in one region
  sgmap audit -r all -o csv --out-file report # All enabled regions to report.csv
  sgmap audit -r eu-west-1 -g sg-0123 -g sg-4567
  sgmap audit --config sgmap.toml --baseline last.json`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	f := auditCmd.Flags()
	f.StringVar(&auditOpts.configPath, "config", "", "Config file (TOML or YAML)")
	f.StringSliceVarP(&auditOpts.regions, "region", "r", nil, "Region to audit, or \"all\" (repeatable)")
	f.StringSliceVarP(&auditOpts.groups, "group", "g", nil, "Security group ID to audit (repeatable, default all)")
	f.StringVar(&auditOpts.profile, "profile", "", "AWS shared config profile")
	f.StringVarP(&auditOpts.keysCSV, "keys-csv", "k", "", "Access key CSV as downloaded from the IAM console")
	f.StringSliceVarP(&auditOpts.formats, "output", "o", nil, "Output format: table, json, csv (repeatable)")
	f.StringVar(&auditOpts.outFile, "out-file", "", "Write each format to <out-file>.<ext> instead of stdout")
	f.StringVar(&auditOpts.baseline, "baseline", "", "JSON report of an earlier run to diff against")
	f.StringVar(&auditOpts.promFile, "prometheus-textfile", "", "Write metrics to a node_exporter textfile")
	f.StringSliceVar(&auditOpts.exclude, "exclude-service", nil, "Service type never queried (repeatable)")
	f.BoolVar(&auditOpts.failFast, "fail-fast", false, "Stop at the first failure")
	f.BoolVar(&auditOpts.debug, "debug", false, "Enable debug logging")
}

func runAudit(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(auditOpts)
	if err != nil {
		return err
	}

	if err := telemetry.SetupLogging(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Audit.Timeout)
	defer cancel()

	tel, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	runner, err := newRunner(ctx, cfg, tel)
	if err != nil {
		return err
	}

	emit, closers, err := buildEmitters(cfg, tel, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeAll(closers)
	defer func() { _ = emit.Close() }()
	log.Debug().Int("emitters", emit.Len()).Strs("formats", cfg.Output.Formats).Msg("emitters ready")

	var report resource.Report
	var g run.Group
	{
		auditCtx, stop := context.WithCancel(ctx)
		g.Add(func() error {
			var err error
			report, err = runner.Run(auditCtx)
			return err
		}, func(error) {
			stop()
		})
	}
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	runErr := g.Run()

	var sigErr run.SignalError
	if errors.As(runErr, &sigErr) {
		log.Warn().Str("signal", sigErr.Signal.String()).Msg("audit interrupted")
	}

	if runErr == nil || len(report.Regions) > 0 {
		if err := emit.Emit(ctx, report); err != nil {
			return fmt.Errorf("emit report: %w", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if report.FailureCount() > 0 {
		log.Warn().Int("failures", report.FailureCount()).Msg("report is incomplete")
		return errPartialFailure
	}
	return nil
}

// buildConfig loads the config file, if any, and applies flag overrides.
func buildConfig(flags auditFlags) (*config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if len(flags.regions) > 0 {
		cfg.AWS.Regions = flags.regions
	}
	if len(flags.groups) > 0 {
		cfg.Audit.Groups = flags.groups
	}
	if flags.profile != "" {
		cfg.AWS.Profile = flags.profile
	}
	if flags.keysCSV != "" {
		cfg.AWS.KeysCSV = flags.keysCSV
	}
	if len(flags.formats) > 0 {
		cfg.Output.Formats = flags.formats
	}
	if flags.outFile != "" {
		cfg.Output.Path = flags.outFile
	}
	if flags.baseline != "" {
		cfg.Output.Baseline = flags.baseline
	}
	if flags.promFile != "" {
		cfg.Output.PrometheusTextfile = flags.promFile
	}
	if len(flags.exclude) > 0 {
		cfg.Audit.ExcludeServices = append(cfg.Audit.ExcludeServices, flags.exclude...)
	}
	if flags.failFast {
		cfg.Audit.FailFast = true
	}
	if flags.debug {
		cfg.Log.Level = "debug"
	}

	if cfg.AWS.KeysCSV != "" {
		creds, err := config.LoadKeysCSV(cfg.AWS.KeysCSV)
		if err != nil {
			return nil, err
		}
		cfg.AWS.AccessKeyID = creds.AccessKeyID
		cfg.AWS.SecretAccessKey = creds.SecretAccessKey
		cfg.AWS.SessionToken = creds.SessionToken
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newRunner resolves the caller's identity and wires the audit runner.
func newRunner(ctx context.Context, cfg *config.Config, tel *telemetry.Provider) (*audit.Runner, error) {
	creds := cfg.AWS.StaticCredentials()
	awsCfg, err := aws.LoadAWSConfig(ctx, aws.Config{
		Region:  cfg.AWS.HomeRegion,
		Profile: cfg.AWS.Profile,
		Credentials: aws.Credentials{
			AccessKeyID:     creds.AccessKeyID,
			SecretAccessKey: creds.SecretAccessKey,
			SessionToken:    creds.SessionToken,
		},
	})
	if err != nil {
		return nil, err
	}

	stsClient, iamClient := aws.NewIdentityClients(awsCfg)
	identity, err := aws.ResolveIdentity(ctx, stsClient, iamClient)
	if err != nil {
		return nil, err
	}

	classifier, err := newClassifier(cfg.Classify)
	if err != nil {
		return nil, err
	}

	home := aws.NewNetwork(aws.NewClientSet(awsCfg).EC2)
	factory := func(region string) audit.Session {
		return aws.New(aws.ConfigForRegion(awsCfg, region), region, identity.AccountID,
			aws.WithEMRClusterStates(cfg.Audit.EMRClusterStates))
	}

	opts := []audit.Option{audit.WithRecorder(tel)}
	if flt := filter.New(cfg.Audit.ExcludeServices, cfg.Audit.IncludeGroupTags, cfg.Audit.ExcludeGroupTags); !flt.IsEmpty() {
		opts = append(opts, audit.WithFilter(flt))
	}

	return audit.NewRunner(audit.Config{
		Regions:      cfg.AWS.Regions,
		Groups:       cfg.Audit.Groups,
		FailFast:     cfg.Audit.FailFast,
		AccountID:    identity.AccountID,
		AccountAlias: identity.Alias,
	}, home, factory, classifier, opts...), nil
}

// newClassifier appends configured rules to the built-in table.
func newClassifier(cfg config.ClassifyConfig) (*classify.Classifier, error) {
	specs := make([]classify.Spec, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		specs = append(specs, classify.Spec{
			Service:             r.Service,
			DescriptionContains: r.DescriptionContains,
			DescriptionPrefix:   r.DescriptionPrefix,
			InterfaceType:       r.InterfaceType,
			TagKey:              r.TagKey,
			GroupNameContains:   r.GroupNameContains,
		})
	}

	extra, err := classify.FromSpecs(specs)
	if err != nil {
		return nil, err
	}
	return classify.NewDefault(extra...), nil
}

// buildEmitters creates one emitter per configured output. The diff runs
// first so a baseline can be read before a JSON report overwrites it.
func buildEmitters(cfg *config.Config, tel *telemetry.Provider, stdout io.Writer) (*emitter.MultiEmitter, []io.Closer, error) {
	var emitters []emitter.Emitter
	var closers []io.Closer

	if cfg.Output.Baseline != "" {
		d, err := emitter.NewDiffEmitter(tel.Meter(), cfg.Output.Baseline)
		if err != nil {
			return nil, nil, err
		}
		emitters = append(emitters, d)
	}

	for _, format := range cfg.Output.Formats {
		w := stdout
		if cfg.Output.Path != "" {
			f, err := os.Create(outputPath(cfg.Output.Path, format)) // #nosec G304 -- path is intentional user input
			if err != nil {
				closeAll(closers)
				return nil, nil, fmt.Errorf("create output: %w", err)
			}
			closers = append(closers, f)
			w = f
		}

		switch format {
		case config.FormatTable:
			emitters = append(emitters, emitter.NewTableEmitter(w))
		case config.FormatJSON:
			emitters = append(emitters, emitter.NewJSONEmitter(w))
		case config.FormatCSV:
			emitters = append(emitters, emitter.NewCSVEmitter(w))
		}
	}

	if cfg.Output.PrometheusTextfile != "" {
		p, err := emitter.NewPrometheusEmitter(tel.Meter(), tel.Gatherer(), cfg.Output.PrometheusTextfile)
		if err != nil {
			closeAll(closers)
			return nil, nil, err
		}
		emitters = append(emitters, p)
	}

	return emitter.NewMultiEmitter(emitters...), closers, nil
}

// outputPath returns the file a format is written to.
func outputPath(base, format string) string {
	ext := format
	if format == config.FormatTable {
		ext = "txt"
	}
	return base + "." + ext
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close output failed")
		}
	}
}
