package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openrollout/openrollout/pkg/checks"
	"github.com/openrollout/openrollout/pkg/controlplane"
	"github.com/openrollout/openrollout/pkg/report"
)

func newVerifyCommand() *cobra.Command {
	var (
		meshNamespace    string
		appNamespace     string
		gatewayURL       string
		dnsZone          string
		dnsResourceGroup string
		verdictPolicy    string
		threshold        float64
		canaryPercent    float64
		canaryTolerance  float64
		probeRequests    int
		outputFile       string
		metricsAddr      string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run the post-deployment verification suite",
		Long: `Run every verification check against the deployed environment and
aggregate the outcomes into an overall verdict.

Exit codes:
  0  the verdict passed
  1  the verdict failed
  2  a check crashed or the suite could not run`,
		Example: `  # Verify with the default threshold policy (80%, critical veto)
  rollout verify --gateway-url https://shop.example.com

  # Require every check to pass
  rollout verify --policy unanimous

  # Write the machine-readable report
  rollout verify --output report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := checks.DefaultConfig()
			cfg.MeshNamespace = meshNamespace
			cfg.AppNamespace = appNamespace
			cfg.GatewayURL = gatewayURL
			cfg.DNSZone = dnsZone
			cfg.DNSResourceGroup = dnsResourceGroup
			cfg.ExpectedCanaryPercent = canaryPercent
			cfg.CanaryTolerance = canaryTolerance
			cfg.ProbeRequests = probeRequests

			client := controlplane.NewKubectlClient(controlplane.Options{
				Context: kubeContext,
				Logger:  log.Logger,
			})
			suite := checks.NewSuite(client, cfg, checks.WithSuiteLogger(log.Logger))

			policy, err := verdictPolicyFor(verdictPolicy, threshold)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			metrics, err := setupMetrics(metricsAddr)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			start := time.Now()
			outcomes := checks.NewRunner(log.Logger).RunAll(ctx, suite.Checks())

			for _, o := range outcomes {
				result := "passed"
				switch {
				case o.Panicked:
					result = "panicked"
				case !o.Passed:
					result = "failed"
				}
				metrics.RecordCheck(o.Name, result)
				for _, f := range o.Findings {
					metrics.RecordFinding(string(f.Severity))
				}
			}

			rep := report.New(report.Metadata{
				GeneratedAt:     time.Now(),
				Target:          gatewayURL,
				DurationSeconds: time.Since(start).Seconds(),
			}, outcomes, policy)

			if err := writeReport(rep, outputFile); err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			summary := rep.Summary
			log.Info().
				Int("passed", summary.Passed).
				Int("total", summary.Total).
				Int("risk_score", summary.RiskScore).
				Str("risk_level", string(summary.RiskLevel)).
				Bool("overall", summary.Overall).
				Msg("Verification completed")

			if checks.AnyPanicked(outcomes) {
				return &ExitError{Code: 2, Message: "one or more checks crashed"}
			}
			if !summary.Overall {
				return &ExitError{Code: 1, Message: "verification verdict failed"}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&meshNamespace, "mesh-namespace", "istio-system", "mesh control-plane namespace")
	cmd.Flags().StringVar(&appNamespace, "app-namespace", "default", "workload namespace")
	cmd.Flags().StringVar(&gatewayURL, "gateway-url", "", "external gateway URL for routing checks")
	cmd.Flags().StringVar(&dnsZone, "dns-zone", "", "DNS zone for the ACME permission check")
	cmd.Flags().StringVar(&dnsResourceGroup, "dns-resource-group", "dns", "resource group containing the DNS zone")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")
	cmd.Flags().StringVar(&verdictPolicy, "policy", "threshold", "verdict policy (threshold, unanimous)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.8, "minimum pass rate for the threshold policy")
	cmd.Flags().Float64Var(&canaryPercent, "canary-percent", 20, "expected canary traffic share")
	cmd.Flags().Float64Var(&canaryTolerance, "canary-tolerance", 20, "allowed shortfall below the expected share")
	cmd.Flags().IntVar(&probeRequests, "probes", 20, "requests sent by sampling checks")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the report JSON to this file")

	return cmd
}

func verdictPolicyFor(name string, threshold float64) (report.Policy, error) {
	switch name {
	case "unanimous":
		return report.Unanimous{}, nil
	case "threshold":
		if threshold <= 0 || threshold > 1 {
			return nil, fmt.Errorf("threshold must be in (0, 1], got %f", threshold)
		}
		return report.ThresholdWithVeto{Fraction: threshold, Veto: checks.SeverityCritical}, nil
	default:
		return nil, fmt.Errorf("unknown verdict policy: %s", name)
	}
}

func writeReport(rep *report.Report, outputFile string) error {
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		if err := rep.Write(f); err != nil {
			return err
		}
	}
	if jsonOutput {
		return rep.Write(os.Stdout)
	}
	return nil
}
