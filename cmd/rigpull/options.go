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
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/containerd/log"
	perrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rigpull/rigpull"
	"github.com/rigpull/rigpull/asset"
	"github.com/rigpull/rigpull/internal/config"
	"github.com/rigpull/rigpull/progress"
	"github.com/rigpull/rigpull/remote"
	"github.com/rigpull/rigpull/remote/auth"
	"github.com/rigpull/rigpull/remote/retry"
)

// envToken is the environment variable holding the bearer token.
const envToken = "RIGPULL_TOKEN"

const headerAPIKey = "X-Api-Key"

var errMissingToken = errors.New("missing access token: use --token, --token-file or " + envToken)

// commonOptions are the flags shared by all the commands.
type commonOptions struct {
	configPath string
	baseURL    string
	debug      bool
	token      string
	tokenFile  string
}

func (opts *commonOptions) applyFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path of the configuration file")
	flags.StringVar(&opts.baseURL, "base-url", "", "base URL of the animation service")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "debug mode")
	flags.StringVar(&opts.token, "token", "", "bearer access token of the service session")
	flags.StringVar(&opts.tokenFile, "token-file", "", "file holding the bearer access token")
}

// session is the environment of a command.
type session struct {
	ctx     context.Context
	config  config.Config
	service *remote.Service
}

// newSession loads the configuration, sets up logging and connects to the
// service.
func (opts *commonOptions) newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if opts.debug || cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	ctx := log.WithLogger(cmd.Context(), logrus.NewEntry(logger))

	cred, err := opts.credential(cfg)
	if err != nil {
		return nil, err
	}
	service, err := remote.NewService(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Transport: &retry.Transport{
			Policy: func() retry.Policy {
				return retry.NewPolicy(cfg.Retry.Attempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
			},
		},
	}
	client := auth.NewClient(httpClient, service.Host(), cred)
	if cfg.APIKey != "" {
		client.Header.Set(headerAPIKey, cfg.APIKey)
	}
	service.Client = client
	service.PageSize = cfg.PageSize

	log.G(ctx).WithFields(log.Fields{
		"base":  service.BaseURL(),
		"token": cred,
	}).Debug("session configured")
	return &session{
		ctx:     ctx,
		config:  cfg,
		service: service,
	}, nil
}

// credential resolves the bearer token from the flags, the environment and
// the configuration, in that order.
func (opts *commonOptions) credential(cfg config.Config) (auth.Credential, error) {
	token := opts.token
	if token == "" && opts.tokenFile != "" {
		data, err := os.ReadFile(opts.tokenFile)
		if err != nil {
			return auth.EmptyCredential, perrors.Wrap(err, "failed to read token file")
		}
		token = string(data)
	}
	if token == "" {
		token = os.Getenv(envToken)
	}
	if token == "" && cfg.TokenFile != "" {
		data, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return auth.EmptyCredential, perrors.Wrap(err, "failed to read token file")
		}
		token = string(data)
	}
	cred := auth.NewCredential(token)
	if cred.IsEmpty() {
		return auth.EmptyCredential, errMissingToken
	}
	return cred, nil
}

// exporter returns the exporter configured for the session.
func (s *session) exporter() *remote.Exporter {
	e := remote.NewExporter(s.service)
	e.PollInterval = s.config.Export.PollInterval
	e.MaxWait = s.config.Export.Timeout
	e.Preferences = remote.Preferences{
		Format:   s.config.Export.Format,
		FPS:      s.config.Export.FPS,
		ReduceKF: s.config.Export.ReduceKF,
	}
	return e
}

// orchestrator returns the orchestrator configured for the session.
func (s *session) orchestrator() *rigpull.Orchestrator {
	return &rigpull.Orchestrator{
		Catalog:            s.service,
		Exporter:           s.exporter(),
		Fetcher:            s.service,
		PayloadRetryPolicy: rigpull.NewPayloadRetryPolicy(s.config.Retry.Attempts, s.config.Retry.BaseDelay, s.config.Retry.MaxDelay),
		Transfers:          transferLogger(s.ctx),
		Extensions: map[asset.Kind]string{
			asset.KindAnimation: s.config.Extensions.Animation,
			asset.KindPose:      s.config.Extensions.Pose,
		},
	}
}

// transferLogger logs the end of payload transfers at debug level.
func transferLogger(ctx context.Context) progress.Manager {
	return progress.ManagerFunc(func(desc asset.Descriptor, status progress.Status, err error) error {
		logger := log.G(ctx).WithField("asset", desc.DisplayName())
		switch {
		case err != nil:
			logger.WithError(err).Debug("transfer interrupted")
		case status.State == progress.StateTransmitted:
			logger.Debug("transfer complete")
		}
		return nil
	})
}

// parseFormat validates an output format.
func parseFormat(format string) (string, error) {
	switch f := strings.ToLower(format); f {
	case "text", "json":
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q: use text or json", format)
	}
}
