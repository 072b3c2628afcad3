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
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rigpull/rigpull"
	"github.com/rigpull/rigpull/asset"
)

type listOptions struct {
	mode   string
	query  string
	format string
}

func listCmd(common *commonOptions) *cobra.Command {
	var opts listOptions
	cmd := &cobra.Command{
		Use:     "list [--mode all|query|tpose] [-q <query>]",
		Aliases: []string{"ls"},
		Short:   "List the animations a pull would download",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, common, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "all", "selection mode: all, query or tpose")
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "select the animations whose name contains the query")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text or json")
	return cmd
}

func runList(cmd *cobra.Command, common *commonOptions, opts listOptions) error {
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
	if mode.Kind() == rigpull.ModeQuery {
		s.service.CatalogQuery = mode.Query()
	}

	assets, err := s.service.ListAssets(s.ctx)
	if err != nil {
		return err
	}
	selections, err := rigpull.Filter(assets, mode)
	if err != nil {
		return err
	}
	return printSelections(cmd.OutOrStdout(), format, selections)
}

// printSelections prints the selected assets.
func printSelections(w io.Writer, format string, selections []rigpull.Selection) error {
	if format == "json" {
		descs := make([]asset.Descriptor, 0, len(selections))
		for _, s := range selections {
			descs = append(descs, s.Descriptor)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(descs)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tNAME")
	for _, s := range selections {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Descriptor.ID, s.Descriptor.Kind, s.Descriptor.DisplayName())
	}
	return tw.Flush()
}
