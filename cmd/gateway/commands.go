package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"security-gateway/internal/config"
	"security-gateway/middleware/admission/application"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// scanCmd roda o detector sobre uma entrada avulsa, para testar assinaturas
// (inclusive as do POLICY_FILE) sem subir o gateway.
func scanCmd() *cobra.Command {
	var (
		reqURL string
		body   string
		query  string
		ua     string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the attack detector against a sample request",
		Example: `  gateway scan --url /search --query "q=1' or '1'='1"
  echo '<script>alert(1)</script>' | gateway scan --body -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if body == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read body: %w", err)
				}
				body = string(b)
			}
			return runScan(cmd.OutOrStdout(), reqURL, body, query, ua)
		},
	}
	cmd.Flags().StringVar(&reqURL, "url", "/", "request path")
	cmd.Flags().StringVar(&body, "body", "", "request body (\"-\" reads stdin)")
	cmd.Flags().StringVar(&query, "query", "", "raw query string")
	cmd.Flags().StringVar(&ua, "ua", "", "User-Agent")
	return cmd
}

type scanResult struct {
	Clean      bool     `json:"clean"`
	Categories []string `json:"categories"`
}

func runScan(w io.Writer, reqURL, body, query, ua string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sigs, err := cfg.SignatureSet()
	if err != nil {
		return err
	}
	detector, err := application.NewDetector(sigs)
	if err != nil {
		return err
	}

	found := detector.Scan(reqURL, body, query, ua)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(scanResult{Clean: found.Empty(), Categories: found.Strings()})
}

func policiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "Print the effective endpoint policy table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printPolicies(cmd.OutOrStdout())
		},
	}
}

func printPolicies(w io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	table, err := cfg.PolicyTable()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tWINDOW\tMAX")
	for _, key := range table.Keys() {
		p, _ := table.Get(key)
		fmt.Fprintf(tw, "%s\t%ds\t%d\n", key, p.WindowSeconds(), p.MaxRequests)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\nalgorithm=%s ban=%s violations=%d/%s attacks=%d/%s\n",
		cfg.RateAlgorithm, cfg.BanDuration,
		cfg.ViolationThreshold, cfg.ViolationPeriod,
		cfg.AttackThreshold, cfg.AttackPeriod)
	return err
}
