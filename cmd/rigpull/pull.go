/*
Copyright The ORAS Authors.
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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/containerd/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rigpull/rigpull"
	"github.com/rigpull/rigpull/progress"
)

type pullOptions struct {
	outputDir string
	mode      string
	query     string
	format    string
}

func pullCmd(common *commonOptions) *cobra.Command {
	var opts pullOptions
	cmd := &cobra.Command{
		Use:   "pull -o <dir> [--mode all|query|tpose] [-q <query>]",
		Short: "Download animations to a local directory",
		Long: `Download animations exported onto the primary character to a local directory

Animations are exported without skin, the T-Pose with the character skin.
Interrupt once to stop after the current animation, twice to abort.

Example - Download every animation:
  rigpull pull -o ./animations

Example - Download the animations matching "walk":
  rigpull pull -o ./animations -q walk

Example - Download the T-Pose:
  rigpull pull -o ./character --mode tpose
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd, common, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "output directory, defaults to output_dir of the configuration")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "all", "selection mode: all, query or tpose")
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "select the animations whose name contains the query")
	cmd.Flags().StringVar(&opts.format, "format", "text", "summary format: text or json")
	return cmd
}

func runPull(cmd *cobra.Command, common *commonOptions, opts pullOptions) error {
	mode, err := rigpull.ParseMode(opts.mode, opts.query)
	if err != nil {
		return err
	}
	format, err := parseFormat(opts.format)
	if err != nil {
		return err
	}
	s, err := common.newSession(cmd)
	if err != nil {
		return err
	}
	outputDir := opts.outputDir
	if outputDir == "" {
		outputDir = s.config.OutputDir
	}
	if outputDir == "" {
		return fmt.Errorf("missing output directory: use --output")
	}
	if mode.Kind() == rigpull.ModeQuery {
		// narrow the listing server-side, the selection still filters it
		s.service.CatalogQuery = mode.Query()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	run, err := s.orchestrator().Start(ctx, outputDir, mode)
	if err != nil {
		return err
	}
	log.G(ctx).WithField("run", run.ID).Debug("run started")

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	stderr := cmd.ErrOrStderr()
	var g errgroup.Group
	g.Go(func() error {
		printEvents(stderr, run.Events())
		return nil
	})
	g.Go(func() error {
		watchSignals(stderr, sigs, run, cancel)
		return nil
	})
	summary, runErr := run.Wait()
	_ = g.Wait()

	if runErr != nil && format == "text" && summary.Completed == 0 {
		return runErr
	}
	if err := printSummary(cmd.OutOrStdout(), format, outputDir, summary); err != nil {
		return err
	}
	return runErr
}

// stopper is a run which can be stopped.
type stopper interface {
	Stop()
	Done() <-chan struct{}
}

// watchSignals stops the run on the first signal, and cancels it on the
// second one. It returns once the run is done.
func watchSignals(w io.Writer, sigs <-chan os.Signal, run stopper, cancel context.CancelFunc) {
	stopping := false
	for {
		select {
		case <-run.Done():
			return
		case <-sigs:
			if !stopping {
				stopping = true
				fmt.Fprintln(w, "Stopping after the current animation, interrupt again to abort")
				run.Stop()
				continue
			}
			fmt.Fprintln(w, "Aborting")
			cancel()
		}
	}
}

// printEvents prints the progress of a run.
func printEvents(w io.Writer, events <-chan progress.Event) {
	for e := range events {
		switch e.Type {
		case progress.EventTotalKnown:
			fmt.Fprintf(w, "Found %d assets to download\n", e.Total)
			if e.Total > 0 {
				fmt.Fprintf(w, "Downloading 1/%d\n", e.Total)
			}
		case progress.EventProgress:
			if e.Completed < e.Total {
				fmt.Fprintf(w, "Downloading %d/%d\n", e.Completed+1, e.Total)
			}
		}
	}
}

// printSummary prints the outcome of a run.
func printSummary(w io.Writer, format, outputDir string, summary progress.Summary) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Fprintf(w, "Downloaded %d of %d assets to %s\n", summary.Succeeded, summary.Total, outputDir)
	if summary.Cancelled {
		fmt.Fprintf(w, "Stopped on request after %d of %d assets\n", summary.Completed, summary.Total)
	}
	if len(summary.Failed) > 0 {
		fmt.Fprintf(w, "Failed to download %d assets:\n", len(summary.Failed))
		for _, f := range summary.Failed {
			fmt.Fprintf(w, "  - %s: %s\n", f.Name, f.Reason)
		}
	}
	return nil
}
