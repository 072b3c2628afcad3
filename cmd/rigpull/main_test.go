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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/rigpull/rigpull/errdef"
	"github.com/rigpull/rigpull/internal/config"
	"github.com/rigpull/rigpull/internal/fakeservice"
	"github.com/rigpull/rigpull/progress"
)

const testToken = "secret-token"

type CLITestSuite struct {
	suite.Suite
	BaseURL string

	server *http.Server
	fake   atomic.Pointer[fakeservice.Server]
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLITestSuite))
}

// Start the fake animation service
func (suite *CLITestSuite) SetupSuite() {
	port, err := freeport.GetFreePort()
	suite.Require().NoError(err, "no error finding free port for test service")
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	suite.BaseURL = "http://" + addr

	listener, err := net.Listen("tcp", addr)
	suite.Require().NoError(err)
	suite.server = &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			suite.fake.Load().ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go suite.server.Serve(listener)
}

func (suite *CLITestSuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = suite.server.Shutdown(ctx)
}

func (suite *CLITestSuite) SetupTest() {
	t := suite.T()
	t.Setenv(envToken, "")
	t.Setenv(config.EnvPollInterval, "1ms")
	t.Setenv(config.EnvExportTimeout, "5s")
	t.Setenv(config.EnvRetryBaseDelay, "1ms")
	t.Setenv(config.EnvRetryMaxDelay, "5ms")
	suite.serve(fakeservice.New(testToken))
}

func (suite *CLITestSuite) serve(fake *fakeservice.Server) *fakeservice.Server {
	suite.fake.Store(fake)
	return fake
}

// execute runs the command line with the service flags and returns its
// standard output and error.
func (suite *CLITestSuite) execute(args ...string) (string, string, error) {
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--base-url", suite.BaseURL))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func files(dir string) []string {
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func (suite *CLITestSuite) Test_Pull_Query() {
	fake := suite.serve(fakeservice.New(testToken,
		fakeservice.Animation("1", "Walk"),
		fakeservice.Animation("2", "Run"),
		fakeservice.Animation("3", "Idle"),
		fakeservice.Animation("4", "WalkFast"),
		fakeservice.Animation("5", "Jump"),
	))
	dir := filepath.Join(suite.T().TempDir(), "out")

	stdout, stderr, err := suite.execute("pull", "-o", dir, "-q", "Walk", "--format", "json", "--token", testToken)
	suite.Require().NoError(err, stderr)

	var summary progress.Summary
	suite.Require().NoError(json.Unmarshal([]byte(stdout), &summary))
	suite.Equal(2, summary.Succeeded)
	suite.Equal(2, summary.Total)
	suite.Empty(summary.Failed)
	suite.False(summary.Cancelled)
	suite.Len(summary.Artifacts, 2)
	suite.Equal([]string{"Walk.fbx", "WalkFast.fbx"}, files(dir))

	suite.Contains(stderr, "Found 2 assets to download")
	suite.Contains(stderr, "Downloading 1/2")
	suite.Contains(stderr, "Downloading 2/2")
	suite.Equal("mixamo2", fake.PayloadHeader("1").Get("X-Api-Key"))
	suite.Equal("rigpull", fake.PayloadHeader("1").Get("User-Agent"))
}

func (suite *CLITestSuite) Test_Pull_TextSummary() {
	fake := suite.serve(fakeservice.New(testToken,
		fakeservice.Animation("1", "Walk"),
		fakeservice.Animation("2", "Run"),
	))
	fake.FailExports = map[string]string{"Run": "retargeting failed"}
	dir := suite.T().TempDir()
	suite.T().Setenv(envToken, "Bearer "+testToken)

	stdout, stderr, err := suite.execute("pull", "-o", dir)
	suite.Require().NoError(err, stderr)
	suite.Contains(stdout, fmt.Sprintf("Downloaded 1 of 2 assets to %s", dir))
	suite.Contains(stdout, "  - Run: retargeting failed")
	suite.Equal([]string{"Walk.fbx"}, files(dir))
}

func (suite *CLITestSuite) Test_Pull_TPose() {
	suite.serve(fakeservice.New(testToken,
		fakeservice.Animation("1", "Walk"),
		fakeservice.Pose("2", "T-Pose"),
	))
	dir := suite.T().TempDir()
	tokenFile := filepath.Join(suite.T().TempDir(), "token")
	suite.Require().NoError(os.WriteFile(tokenFile, []byte(testToken+"\n"), 0600))

	_, stderr, err := suite.execute("pull", "-o", dir, "--mode", "tpose", "--token-file", tokenFile)
	suite.Require().NoError(err, stderr)
	suite.Equal([]string{"T-Pose.fbx"}, files(dir))
}

func (suite *CLITestSuite) Test_Pull_TPoseMissing() {
	suite.serve(fakeservice.New(testToken, fakeservice.Animation("1", "Walk")))
	dir := suite.T().TempDir()

	stdout, _, err := suite.execute("pull", "-o", dir, "--mode", "tpose", "--token", testToken)
	suite.ErrorIs(err, errdef.ErrNotFound)
	suite.Empty(stdout)
	suite.Empty(files(dir))
}

func (suite *CLITestSuite) Test_Pull_Unauthorized() {
	suite.serve(fakeservice.New(testToken, fakeservice.Animation("1", "Walk")))

	_, _, err := suite.execute("pull", "-o", suite.T().TempDir(), "--token", "expired")
	suite.ErrorIs(err, errdef.ErrUnauthorized)
}

func (suite *CLITestSuite) Test_Pull_Errors() {
	dir := suite.T().TempDir()

	_, _, err := suite.execute("pull", "-o", dir)
	suite.ErrorIs(err, errMissingToken)

	_, _, err = suite.execute("pull", "-o", dir, "--mode", "query", "--token", testToken)
	suite.ErrorIs(err, errdef.ErrInvalidMode)

	_, _, err = suite.execute("pull", "-o", dir, "--format", "yaml", "--token", testToken)
	suite.ErrorContains(err, "unsupported output format")

	_, _, err = suite.execute("pull", "--token", testToken)
	suite.ErrorContains(err, "missing output directory")

	_, _, err = suite.execute("pull", "-o", dir, "--token-file", filepath.Join(dir, "missing"))
	suite.ErrorContains(err, "failed to read token file")
}

func (suite *CLITestSuite) Test_List() {
	suite.serve(fakeservice.New(testToken,
		fakeservice.Animation("1", "Walk"),
		fakeservice.Animation("2", "Run"),
		fakeservice.Pose("3", "T-Pose"),
	))

	stdout, stderr, err := suite.execute("list", "--token", testToken)
	suite.Require().NoError(err, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	suite.Require().Len(lines, 3)
	suite.Equal([]string{"ID", "KIND", "NAME"}, strings.Fields(lines[0]))
	suite.Equal([]string{"1", "animation", "Walk"}, strings.Fields(lines[1]))
	suite.Equal([]string{"2", "animation", "Run"}, strings.Fields(lines[2]))

	stdout, stderr, err = suite.execute("ls", "--mode", "tpose", "--format", "json", "--token", testToken)
	suite.Require().NoError(err, stderr)
	var listed []map[string]any
	suite.Require().NoError(json.Unmarshal([]byte(stdout), &listed))
	suite.Require().Len(listed, 1)
	suite.Equal("T-Pose", listed[0]["name"])
}

func (suite *CLITestSuite) Test_Version() {
	stdout, _, err := suite.execute("version")
	suite.Require().NoError(err)
	suite.True(strings.HasPrefix(stdout, "rigpull devel "))
}

// fakeRun is a run stopped and cancelled by signals.
type fakeRun struct {
	stops int
	done  chan struct{}
}

func (r *fakeRun) Stop() {
	r.stops++
}

func (r *fakeRun) Done() <-chan struct{} {
	return r.done
}

func TestWatchSignals(t *testing.T) {
	run := &fakeRun{done: make(chan struct{})}
	sigs := make(chan os.Signal, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		watchSignals(&out, sigs, run, cancel)
	}()

	sigs <- os.Interrupt
	sigs <- syscall.SIGTERM
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("second signal did not cancel the run")
	}
	close(run.done)
	<-returned

	assert.Equal(t, 1, run.stops)
	assert.Contains(t, out.String(), "Stopping after the current animation")
	assert.Contains(t, out.String(), "Aborting")
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	err := printSummary(&out, "text", "/tmp/out", progress.Summary{
		Succeeded: 3,
		Completed: 5,
		Total:     10,
		Cancelled: true,
		Failed: []progress.Failure{
			{Name: "Run", Reason: "timed out"},
			{Name: "Jump", Reason: "retargeting failed"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `Downloaded 3 of 10 assets to /tmp/out
Stopped on request after 5 of 10 assets
Failed to download 2 assets:
  - Run: timed out
  - Jump: retargeting failed
`, out.String())
}

func TestCredential(t *testing.T) {
	t.Setenv(envToken, "from-env")
	opts := &commonOptions{}
	cred, err := opts.credential(config.Default())
	require.NoError(t, err)
	assert.Equal(t, "from-env", cred.AccessToken)

	opts.token = "from-flag"
	cred, err = opts.credential(config.Default())
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cred.AccessToken)

	t.Setenv(envToken, "")
	_, err = (&commonOptions{}).credential(config.Default())
	assert.True(t, errors.Is(err, errMissingToken))
}
