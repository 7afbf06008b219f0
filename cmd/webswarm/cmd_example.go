package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"webswarm/internal/catalog"
	"webswarm/internal/domain"
	"webswarm/internal/report"
)

var exampleFlags struct {
	target targetFlags
	choice string
}

var exampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Interactive demo: three agents in parallel, or the same tasks one by one",
	RunE:  runExample,
}

func init() {
	addTargetFlags(exampleCmd, &exampleFlags.target, "")
	exampleCmd.Flags().StringVar(&exampleFlags.choice, "choice", "", "menu option to run without prompting (1, 2 or 0)")
}

type menuActions struct {
	parallel   func(ctx context.Context) error
	sequential func(ctx context.Context) error
}

const menuText = `Choose a test mode:
1. Parallel test (3 agents at once)
2. Sequential test (for comparison)
0. Exit
`

// runMenu prompts on in unless choice is preset and dispatches the answer.
func runMenu(ctx context.Context, in io.Reader, out io.Writer, choice string, actions menuActions) error {
	if strings.TrimSpace(choice) == "" {
		fmt.Fprint(out, menuText)
		fmt.Fprint(out, "Enter option: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read menu choice: %w", err)
		}
		choice = line
	}

	switch strings.TrimSpace(choice) {
	case "1":
		return actions.parallel(ctx)
	case "2":
		return actions.sequential(ctx)
	case "0":
		fmt.Fprintln(out, "Exiting")
		return nil
	default:
		fmt.Fprintln(out, "Invalid option")
		return nil
	}
}

func runExample(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	exampleFlags.target.apply(cmd, &cfg)
	out := cmd.OutOrStdout()

	withRuntime := func(ctx context.Context, fn func(rt *runtime) (domain.Report, error)) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{reportPath: exampleFlags.target.report})
		if err != nil {
			return err
		}
		defer rt.Close()
		stopMetrics, err := rt.serveMetrics(exampleFlags.target.metricsAddr)
		if err != nil {
			return err
		}
		defer stopMetrics()

		stop := startProgress(rt.bus, out)
		rep, runErr := fn(rt)
		stop()
		printExampleResults(out, rep)
		fmt.Fprint(out, report.Summary(rep, exampleFlags.target.report))
		return runErr
	}

	creds := credentials(cfg)
	return runMenu(cmd.Context(), cmd.InOrStdin(), out, exampleFlags.choice, menuActions{
		parallel: func(ctx context.Context) error {
			fmt.Fprintf(out, "%s\nParallel test of %s\n%s\n", rule, cfg.Target.URL, rule)
			return withRuntime(ctx, func(rt *runtime) (domain.Report, error) {
				return rt.service.RunCatalog(ctx, domain.RunModeExampleParallel, catalog.Example(creds))
			})
		},
		sequential: func(ctx context.Context) error {
			fmt.Fprintf(out, "%s\nSequential test of %s\n%s\n", rule, cfg.Target.URL, rule)
			return withRuntime(ctx, func(rt *runtime) (domain.Report, error) {
				return rt.service.RunSequential(ctx, catalog.Sequential(creds))
			})
		},
	})
}

func printExampleResults(out io.Writer, rep domain.Report) {
	for i, o := range rep.TestDetails {
		fmt.Fprintf(out, "\nResult %d (%s):\n", i+1, o.Description)
		if msg, ok := o.Details["error"]; ok {
			fmt.Fprintf(out, "  error: %s\n", msg)
			continue
		}
		fmt.Fprintf(out, "  %s\n", o.Details["result"])
	}
}
