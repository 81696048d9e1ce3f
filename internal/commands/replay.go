package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"mapdna/internal/interpreter"
	"mapdna/internal/interpreter/replay"

	"github.com/spf13/cobra"
)

type replayOptions struct {
	dna    bool
	popups string
	token  string
	settle bool
	strict bool
}

func newReplayCmd(app *App) *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay <file|->",
		Short: "Run rendered maps through the interpreter",
		Long: `Replay rendered page markup, or a bare DNA string with --dna, against
an in-memory map engine and print what each map would show: markers,
popups, zoom, center and the console output of the interpreter.`,
		Example: `  # Replay a rendered page
  mapdna replay page.html --settle

  # Replay DNA from stdin and fail on warnings
  mapdna build stores.yaml --json | jq .dna | mapdna replay --dna --strict -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, app, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dna, "dna", false, "treat the input as a DNA array instead of HTML")
	cmd.Flags().StringVar(&opts.popups, "popups", "", "JSON file with the popup table of a --dna replay")
	cmd.Flags().StringVar(&opts.token, "token", "", "access token used when the page does not define one")
	cmd.Flags().BoolVar(&opts.settle, "settle", false, "run the delayed automatic fit before reporting")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit with an error when the interpreter warned")
	return cmd
}

func runReplay(cmd *cobra.Command, app *App, path string, opts replayOptions) error {
	input, err := readInput(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	ropts := replay.Options{AccessToken: opts.token, Settle: opts.settle}
	if ropts.AccessToken == "" {
		s, err := app.session(cmd)
		if err != nil {
			return err
		}
		ropts.AccessToken = s.cfg.GetMapboxAccessToken()
	}

	var report *replay.Report
	if opts.dna {
		var popups map[string]interpreter.PopupData
		if opts.popups != "" {
			raw, err := os.ReadFile(opts.popups)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(raw, &popups); err != nil {
				return fmt.Errorf("read popups: %w", err)
			}
		}
		report, err = replay.DNA(input, popups, ropts)
	} else {
		report, err = replay.HTMLString(string(input), ropts)
	}
	if err != nil {
		return err
	}

	if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if opts.strict {
		if warnings := report.Warnings(); len(warnings) > 0 {
			return fmt.Errorf("interpreter reported %d warning(s): %s", len(warnings), warnings[0])
		}
	}
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
