package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/repository/memory"
)

type evaluateOptions struct {
	file    string
	samples bool
	asJSON  bool
}

type evaluation struct {
	Request domain.ActionRequest    `json:"request"`
	Result  domain.EvaluationResult `json:"result"`
}

func newEvaluateCmd(a *app) *cobra.Command {
	opts := &evaluateOptions{}
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Dry-run action requests against the configured policies (nothing is recorded)",
		Long: `Reads a JSON action request (or an array of them) from --file, or "-" for stdin,
and prints the decision each one would get. --samples evaluates the built-in demo requests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, a, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", `JSON request file, "-" for stdin`)
	cmd.Flags().BoolVar(&opts.samples, "samples", false, "Evaluate the built-in sample requests")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print results as JSON")
	return cmd
}

func runEvaluate(cmd *cobra.Command, a *app, opts *evaluateOptions) error {
	var requests []domain.ActionRequest
	switch {
	case opts.samples:
		requests = memory.SampleRequests()
	case opts.file != "":
		var err error
		if requests, err = readRequests(cmd.InOrStdin(), opts.file); err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --file or --samples is required")
	}

	sb, err := buildSandbox(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer sb.feed.Close()

	results := make([]evaluation, 0, len(requests))
	for _, req := range requests {
		res, err := sb.core.DryRun(cmd.Context(), req, nil)
		if err != nil {
			return fmt.Errorf("evaluate %s %s: %s", req.AgentID, req.ActionType, domain.PublicMessage(err))
		}
		results = append(results, evaluation{Request: req, Result: res})
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tTYPE\tTARGET\tDECISION\tREASON")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Request.AgentID, r.Request.ActionType, r.Request.Target, r.Result.Decision, r.Result.Reason)
	}
	return tw.Flush()
}

// readRequests принимает как одиночный объект, так и массив запросов.
func readRequests(stdin io.Reader, path string) ([]domain.ActionRequest, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read requests: %w", err)
	}

	var many []domain.ActionRequest
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one domain.ActionRequest
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("parse requests: %w", err)
	}
	return []domain.ActionRequest{one}, nil
}
