/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/codeconvert/internal/client"
	"github.com/valpere/codeconvert/internal/clipboard"
	"github.com/valpere/codeconvert/internal/language"
	"github.com/valpere/codeconvert/internal/session"
	"github.com/valpere/codeconvert/internal/validator"
	"github.com/valpere/codeconvert/pkg/logger"
)

var (
	convertInput    string
	convertFrom     string
	convertTo       []string
	convertEndpoint string
	noClipboard     bool
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Translate code through the /api/translate proxy",
	Long: `Translate a file (or stdin) from one language into one or more target
languages. The translation is streamed to stdout as it arrives and the finished
text is copied to the clipboard.

Every target after the first reuses the same source, the way changing the output
language does after a translation has completed:

  codeconvert convert -i main.js --from JavaScript --to Python,Go,Rust

Use "Natural Language" as --from or --to to describe code in English or to
generate code from a description. Ctrl-C cancels the translation in flight.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(convertTo) == 0 {
			return fmt.Errorf("at least one --to language is required")
		}

		text, err := readInput(convertInput)
		if err != nil {
			return err
		}

		for _, label := range append([]string{convertFrom}, convertTo...) {
			if !language.IsRecognized(label) {
				fmt.Fprintf(os.Stderr, "Warning: %q is not a recognized language\n", label)
			}
		}

		endpoint := cfg.Client.Endpoint
		if convertEndpoint != "" {
			endpoint = convertEndpoint
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := &streamPrinter{w: os.Stdout}
		clip := pickClipboard()
		s := session.New(client.New(endpoint, cfg.Client.HeaderTimeout), session.Config{
			Clipboard: clip,
			Notifier: session.NotifierFunc(func(err error) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}),
			Observer:  out,
			Validator: validator.New(cfg.Client.MaxInputLength),
		})

		// Failures past this point have been shown by the notifier.
		cmd.SilenceErrors = true

		if err := s.SetInputLanguage(convertFrom); err != nil {
			return err
		}
		if err := s.SetOutputLanguage(ctx, convertTo[0]); err != nil {
			return err
		}
		if err := s.SetInput(text); err != nil {
			return err
		}

		announce(convertTo[0], len(convertTo))
		if err := s.Generate(ctx); err != nil {
			return reportStop(err)
		}
		out.finish()

		for _, target := range convertTo[1:] {
			announce(target, len(convertTo))
			if err := s.SetOutputLanguage(ctx, target); err != nil {
				return reportStop(err)
			}
			if !s.State().HasTranslated() {
				err := fmt.Errorf("no translation produced for %s", target)
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return err
			}
			out.finish()
		}

		if _, discard := clip.(clipboard.Discard); !discard && s.State().Copied {
			logger.Infof("translation copied to clipboard")
		}
		return nil
	},
}

func readInput(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}

func pickClipboard() clipboard.Writer {
	if noClipboard || !cfg.Client.Clipboard {
		return clipboard.Discard{}
	}
	sys := clipboard.System{}
	if !sys.Available() {
		logger.Warnf("%v, output will not be copied", clipboard.ErrUnsupported)
		return clipboard.Discard{}
	}
	return sys
}

func announce(target string, total int) {
	if total > 1 {
		fmt.Fprintf(os.Stderr, "--- %s ---\n", target)
	}
}

func reportStop(err error) error {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "\nTranslation cancelled.")
	}
	return err
}

// streamPrinter writes the part of the output that has not been printed yet.
type streamPrinter struct {
	w       io.Writer
	printed int
	last    string
}

func (p *streamPrinter) StateChanged(s session.State) {
	if len(s.Output) < p.printed || !strings.HasPrefix(s.Output, p.last) {
		p.printed = 0
	}
	if len(s.Output) > p.printed {
		fmt.Fprint(p.w, s.Output[p.printed:])
		p.printed = len(s.Output)
	}
	p.last = s.Output
}

// finish terminates the current translation with a newline if it lacks one.
func (p *streamPrinter) finish() {
	if p.last != "" && !strings.HasSuffix(p.last, "\n") {
		fmt.Fprintln(p.w)
	}
	p.printed = 0
	p.last = ""
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertInput, "input", "i", "-", "Input file, or - for stdin")
	convertCmd.Flags().StringVarP(&convertFrom, "from", "f", language.NaturalLanguage, "Input language")
	convertCmd.Flags().StringSliceVarP(&convertTo, "to", "t", []string{session.DefaultOutputLanguage}, "Output language(s), comma-separated")
	convertCmd.Flags().StringVar(&convertEndpoint, "endpoint", "", "Proxy base URL (overrides client.endpoint)")
	convertCmd.Flags().BoolVar(&noClipboard, "no-clipboard", false, "Do not copy the result to the clipboard")
}
