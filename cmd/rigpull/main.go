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
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts commonOptions
	cmd := &cobra.Command{
		Use:          "rigpull [command]",
		Short:        "Bulk download animations from a Mixamo-style animation service",
		SilenceUsage: true,
	}
	opts.applyFlags(cmd)
	cmd.AddCommand(
		pullCmd(&opts),
		listCmd(&opts),
		versionCmd(),
	)
	return cmd
}
