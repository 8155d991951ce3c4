// Command wasmtool is a file-oriented harness around the module pipeline:
// decode, validate, print, and assemble WebAssembly modules. It never
// instantiates or runs a module.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wasmhost/wasmgate/internal/diag"
	"github.com/wasmhost/wasmgate/internal/pipeline"
)

var (
	cfg             pipeline.Config
	logLevel        string
	quiet           bool
	outputPath      string
	allowMutableImp bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wasmtool",
		Short:         "Decode, validate, print, and assemble WebAssembly modules",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg.Features.MutableGlobalImport = allowMutableImp
			configureLogging()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error log output")
	root.PersistentFlags().BoolVar(&allowMutableImp, "allow-mutable-global-imports", false, "permit importing mutable globals")

	root.AddCommand(newDecodeCmd(), newValidateCmd(), newPrintCmd(), newAssembleCmd())
	return root
}

func configureLogging() {
	l := logrus.New()
	if quiet {
		l.SetLevel(logrus.ErrorLevel)
	} else if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		l.SetLevel(lvl)
	}
	diag.SetLogger(l)
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <file.wasm>",
		Short: "Decode and validate a binary module, printing a section-count summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			m, errs := pipeline.DecodeAndValidate(data, cfg)
			if len(errs) > 0 {
				return reportErrors(errs)
			}
			fmt.Printf("OK: %d types, %d imports, %d functions, %d exports\n",
				len(m.TypeSection), len(m.ImportSection), m.FunctionCount(), len(m.ExportSection))
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.wasm|file.wat>",
		Short: "Validate a module, exiting 0/1 with no stdout output on success",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			var errs []error
			if isWat(args[0]) {
				_, errs = pipeline.ParseAndValidate(data, cfg)
			} else {
				_, errs = pipeline.DecodeAndValidate(data, cfg)
			}
			if len(errs) > 0 {
				return reportErrors(errs)
			}
			return nil
		},
	}
}

func newPrintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "print <file.wasm>",
		Short: "Decode, validate, and print a module as WAST text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			m, errs := pipeline.DecodeAndValidate(data, cfg)
			if len(errs) > 0 {
				return reportErrors(errs)
			}
			return writeOutput([]byte(pipeline.Print(m)))
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output path (default stdout)")
	return cmd
}

func newAssembleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assemble <file.wat>",
		Short: "Parse, validate, and encode a module to its binary form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			m, errs := pipeline.ParseAndValidate(data, cfg)
			if len(errs) > 0 {
				return reportErrors(errs)
			}
			return writeOutput(pipeline.Encode(m))
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output path (default stdout)")
	return cmd
}

func isWat(path string) bool {
	return len(path) >= 4 && path[len(path)-4:] == ".wat"
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(data []byte) error {
	if outputPath == "" || outputPath == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

func reportErrors(errs []error) error {
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, pipeline.FormatError(e))
	}
	// Pipeline errors exit 1; main's exit 2 is left for usage errors.
	os.Exit(1)
	return fmt.Errorf("%d error(s)", len(errs))
}
