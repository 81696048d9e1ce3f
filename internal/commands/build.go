package commands

import (
	"fmt"
	"os"

	"mapdna/internal/assets"
	"mapdna/internal/maps"
	"mapdna/internal/mapspec"
	"mapdna/internal/templates"
	"mapdna/platform/validator"

	"github.com/spf13/cobra"
)

type buildOptions struct {
	format string
	asJSON bool
	out    string
}

func newBuildCmd(app *App) *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "build <document>",
		Short: "Render a map document to embeddable markup",
		Long: `Compile a YAML or JSON map document and print the tagged map
together with the head and end-of-body scripts it registered. Element
references are resolved from the database when DATABASE_URL is set.`,
		Example: `  # Render a YAML document
  mapdna build stores.yaml

  # Print the DNA and popups as JSON
  mapdna build stores.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, app, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "", "document format (yaml or json); defaults to the file extension")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the render result as JSON")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write output to a file instead of stdout")
	return cmd
}

func runBuild(cmd *cobra.Command, app *App, path string, opts buildOptions) error {
	ctx := cmd.Context()
	s, err := app.session(cmd)
	if err != nil {
		return err
	}

	format := mapspec.FormatFromPath(path)
	switch opts.format {
	case "":
	case string(mapspec.FormatJSON), string(mapspec.FormatYAML):
		format = mapspec.Format(opts.format)
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := mapspec.Decode(f, format)
	if err != nil {
		return err
	}

	source, fields, closeStore, err := s.elementStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := maps.NewService(
		mapspec.NewCompiler(validator.New(), source),
		source, fields,
		templates.New(s.cfg),
		assets.NewLoader(s.cfg, nil, s.log),
		s.cfg, s.log,
	)
	res, err := svc.Render(ctx, doc)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if opts.out != "" {
		out, err := os.Create(opts.out)
		if err != nil {
			return err
		}
		defer out.Close()
		w = out
	}

	if opts.asJSON {
		return writeJSON(w, res)
	}
	_, err = fmt.Fprintln(w, res.Fragment())
	return err
}
