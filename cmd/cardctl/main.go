package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/convert"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/logging"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/render"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/services"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

type globalOptions struct {
	logLevel  string
	dpi       int
	converter string
	timeout   time.Duration
}

func main() {
	_ = godotenv.Load()

	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "cardctl",
		Short:         "Inspect and render ID card templates locally",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&opts.dpi, "dpi", 300, "output resolution")
	rootCmd.PersistentFlags().StringVar(&opts.converter, "converter", "", "preferred converter (rsvg-convert, inkscape, native)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "per-conversion timeout")

	rootCmd.AddCommand(newFieldsCommand())
	rootCmd.AddCommand(newRenderCommand(opts))
	rootCmd.AddCommand(newMergeCommand())
	rootCmd.AddCommand(newConvertersCommand(opts))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return rootCmd
}

func (o *globalOptions) manager(log logging.Logger) *convert.Manager {
	return convert.NewManager(convert.ManagerConfig{
		DPIX:      o.dpi,
		DPIY:      o.dpi,
		Timeout:   o.timeout,
		Preferred: o.converter,
		Logger:    log,
	})
}

func newFieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "fields <front.svg> [back.svg]",
		Short:   "List the fields a template pair accepts",
		Example: `  cardctl fields front.svg back.svg`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs := make([][]byte, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read template: %w", err)
				}
				docs = append(docs, data)
			}

			fields, err := render.ExtractFields(docs...)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"fields": fields})
		},
	}
}

// parseFieldFlags turns key=value pairs into render fields. A value of
// @path is read from disk and passed as a data URI.
func parseFieldFlags(pairs []string) (map[string]string, error) {
	fields := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", pair)
		}
		if path, isFile := strings.CutPrefix(value, "@"); isFile {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read field %s: %w", key, err)
			}
			value = render.EncodeDataURI(mimeByExtension(path), data)
		}
		fields[key] = value
	}
	return fields, nil
}

func mimeByExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return render.MimePNG
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".svg":
		return render.MimeSVG
	case ".pdf":
		return render.MimePDF
	default:
		return "application/octet-stream"
	}
}

func newRenderCommand(opts *globalOptions) *cobra.Command {
	var (
		front, back string
		fieldPairs  []string
		noQR        bool
		frontOnly   bool
		outDir      string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a card to PDF and PNG files",
		Example: `  cardctl render --front front.svg --back back.svg --field name=Juan --field profile_photo=@photo.png --out ./out
  cardctl render --front front.svg --front-only --no-qr --field qrcode_id=@qr.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(opts.logLevel, "text")

			fields, err := parseFieldFlags(fieldPairs)
			if err != nil {
				return err
			}

			createQR := !noQR
			req := &services.RenderRequest{CreateQRCode: &createQR, Fields: fields, FrontOnly: frontOnly}
			if err := services.NewValidatorService().ValidateRenderRequest(req); err != nil {
				return err
			}

			card := render.Card{ID: filepath.Base(front)}
			if card.FrontSVG, err = os.ReadFile(front); err != nil {
				return fmt.Errorf("failed to read front template: %w", err)
			}
			if back != "" {
				if card.BackSVG, err = os.ReadFile(back); err != nil {
					return fmt.Errorf("failed to read back template: %w", err)
				}
			}

			renderer := render.NewRenderer(render.Config{
				Converter: opts.manager(log),
				QR:        services.NewQRService(),
				Logger:    log,
			})

			result, err := renderer.Render(cmd.Context(), card, fields, render.Options{
				CreateQRCode: req.WantsQRCode(),
				FrontOnly:    frontOnly,
			})
			if err != nil {
				return err
			}

			return writeResult(cmd, outDir, result)
		},
	}

	cmd.Flags().StringVar(&front, "front", "", "front side SVG template")
	cmd.Flags().StringVar(&back, "back", "", "back side SVG template")
	cmd.Flags().StringArrayVarP(&fieldPairs, "field", "f", nil, "field value as key=value, or key=@file for images")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "treat qrcode fields as data URIs instead of generating codes")
	cmd.Flags().BoolVar(&frontOnly, "front-only", false, "render only the front side")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	_ = cmd.MarkFlagRequired("front")

	return cmd
}

func writeResult(cmd *cobra.Command, outDir string, result *render.Result) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	write := func(name, uri string) error {
		_, data, err := render.DecodeDataURI(uri)
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	}

	if err := write("card.pdf", result.PDF); err != nil {
		return err
	}
	for i, uri := range result.PNG {
		if err := write(fmt.Sprintf("card-%d.png", i+1), uri); err != nil {
			return err
		}
	}
	return nil
}

func newMergeCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "merge <a.pdf> <b.pdf> [more.pdf...]",
		Short:   "Merge card PDFs into one print file",
		Example: `  cardctl merge -o batch.pdf card-1.pdf card-2.pdf`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				if err := convert.ValidatePDF(data); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			if err := convert.MergePDFs(args, output); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "out", "o", "merged.pdf", "output PDF")
	return cmd
}

func newConvertersCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "converters",
		Short: "List installed SVG converters in fallback order",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range opts.manager(logging.Nop()).Available() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
