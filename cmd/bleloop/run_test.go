package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/bleloop/bleloop"
	"github.com/bleloop/bleloop/internal/stacksim"
	"github.com/bleloop/bleloop/internal/testutils"
)

// RunCommandSuite provides testify/suite for proper test isolation
type RunCommandSuite struct {
	CommandTestSuite
	originalFlags struct {
		runScenario   string
		runDuration   time.Duration
		runAdvertise  time.Duration
		runTrace      uint32
		checkScenario string
	}
}

// SetupSuite runs once before all tests in the suite
func (suite *RunCommandSuite) SetupSuite() {
	suite.originalFlags.runScenario = runScenario
	suite.originalFlags.runDuration = runDuration
	suite.originalFlags.runAdvertise = runAdvertise
	suite.originalFlags.runTrace = runTrace
	suite.originalFlags.checkScenario = checkScenario
}

// TearDownSuite runs once after all tests in the suite
func (suite *RunCommandSuite) TearDownSuite() {
	runScenario = suite.originalFlags.runScenario
	runDuration = suite.originalFlags.runDuration
	runAdvertise = suite.originalFlags.runAdvertise
	runTrace = suite.originalFlags.runTrace
	checkScenario = suite.originalFlags.checkScenario
}

// SetupTest runs before each test in the suite
func (suite *RunCommandSuite) SetupTest() {
	resetRunFlags()

	// Reset the commands and re-initialize flags to ensure a clean state
	// for each test. This prevents command state pollution between tests
	runCmd.ResetFlags()
	runCmd.Flags().StringVarP(&runScenario, "scenario", "s", "", "YAML scenario file to play (overrides the config file)")
	runCmd.Flags().DurationVarP(&runDuration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C or scenario end)")
	runCmd.Flags().DurationVar(&runAdvertise, "advertise-every", 0, "Rotate advertisement payloads at this interval (0 disables)")
	runCmd.Flags().Uint32Var(&runTrace, "trace", 0, "Keep the last N dispatched events and print them on exit")

	checkCmd.ResetFlags()
	checkCmd.Flags().StringVarP(&checkScenario, "scenario", "s", "", "YAML scenario file to validate (overrides the config file)")
}

func resetRunFlags() {
	runScenario = ""
	runDuration = 0
	runAdvertise = 0
	runTrace = 0
	checkScenario = ""
}

const fastConfig = `
log:
  level: error
pipeline:
  tick_interval_ms: 5
  settle_time_ms: 0
`

const demoScenario = `
name: demo
steps:
  - action: pause
    delay_ms: 60
  - action: scan_result
    addr: "11:22:33:44:55:66"
    rssi: -52
    name: probe
  - action: completion
    event: scan_stop_complete
  - action: register_app
    app_id: 7
`

func (suite *RunCommandSuite) TestRunCmd_Help() {
	// GOAL: Verify run command displays help text with all flags
	//
	// TEST SCENARIO: Execute run --help → returns success → output contains description and flag documentation

	output, err := executeCommand(newTestRoot(), "run", "--help")
	suite.Require().NoError(err, "help command MUST succeed")

	suite.Assert().Contains(output, "Bring up the simulated BLE stack", "help MUST contain command description")
	suite.Assert().Contains(output, "--scenario", "help MUST document --scenario flag")
	suite.Assert().Contains(output, "--duration", "help MUST document --duration flag")
	suite.Assert().Contains(output, "--trace", "help MUST document --trace flag")
}

func (suite *RunCommandSuite) TestRunCmd_UnknownLogLevel() {
	// GOAL: Verify run command rejects invalid log levels before starting anything
	//
	// TEST SCENARIO: Execute run with bogus --log-level → returns error naming the level

	_, err := executeCommand(newTestRoot(), "run", "--log-level=verbose")

	suite.Require().Error(err, "invalid log level MUST return error")
	suite.Assert().Contains(err.Error(), "unknown log level", "error MUST name the problem")
}

func (suite *RunCommandSuite) TestRunCmd_MissingScenarioFile() {
	// GOAL: Verify run command surfaces a missing scenario file as an error
	//
	// TEST SCENARIO: Execute run --scenario pointing nowhere → returns file error

	missing := filepath.Join(suite.T().TempDir(), "missing.yaml")
	_, err := executeCommand(newTestRoot(), "run", "--scenario="+missing)

	suite.Require().Error(err, "missing scenario MUST return error")
}

func (suite *RunCommandSuite) TestRunCmd_PlaysScenarioToCompletion() {
	// GOAL: Verify the full pipeline: bring-up, scenario playback, dispatch,
	// orderly shutdown and the trace summary on stdout
	//
	// TEST SCENARIO: Execute run with a config and a short scenario → exits
	// cleanly after the last step → summary lists gap and gatts trace entries

	cfgPath := suite.writeFile("bleloop.yaml", fastConfig)
	scPath := suite.writeFile("demo.yaml", demoScenario)

	var err error
	output := suite.CaptureStdout(func() {
		_, err = executeCommand(newTestRoot(),
			"run", "--config="+cfgPath, "--scenario="+scPath, "--trace=16", "--duration=5s")
	})

	suite.Require().NoError(err, "scenario run MUST succeed")
	suite.Assert().Contains(output, "TS(US)", "summary MUST include the trace header")
	suite.Assert().Contains(output, "gap", "trace MUST include the GAP events")
	suite.Assert().Contains(output, "gatts", "trace MUST include the app registration event")
	suite.Assert().NotContains(output, "Dropped events", "nothing MUST be dropped at this rate")
}

func (suite *RunCommandSuite) TestRunCmd_BringUpFailurePropagates() {
	// GOAL: Verify a lifecycle failure surfaces as the command error
	//
	// TEST SCENARIO: Config delays controller transitions beyond the poll
	// timeout → bring-up fails at controller init → error carries the step

	cfgPath := suite.writeFile("stuck.yaml", `
log:
  level: error
pipeline:
  tick_interval_ms: 5
  settle_time_ms: 0
  status_poll_interval_ms: 1
  status_poll_timeout_ms: 20
sim:
  status_delay_ms: 250
`)

	_, err := executeCommand(newTestRoot(), "run", "--config="+cfgPath, "--duration=5s")

	suite.Require().Error(err, "stuck controller MUST fail the run")
	var lerr *bleloop.LifecycleError
	suite.Require().ErrorAs(err, &lerr, "error MUST be a lifecycle error")
	suite.Assert().Equal(bleloop.PhaseBringUp, lerr.Phase)
	suite.Assert().Equal("controller init", lerr.Step)
	suite.Assert().ErrorIs(err, bleloop.ErrPollTimeout)
}

func (suite *RunCommandSuite) TestCheckCmd_ValidScenario() {
	// GOAL: Verify check validates config and scenario without running the pipeline
	//
	// TEST SCENARIO: Execute check with valid files → success, step count reported

	cfgPath := suite.writeFile("bleloop.yaml", fastConfig)
	scPath := suite.writeFile("demo.yaml", demoScenario)

	var err error
	output := suite.CaptureStdout(func() {
		_, err = executeCommand(newTestRoot(), "check", "--config="+cfgPath, "--scenario="+scPath)
	})

	suite.Require().NoError(err, "valid files MUST pass check")
	suite.Assert().Contains(output, `scenario "demo": 4 steps`)
}

func (suite *RunCommandSuite) TestCheckCmd_RejectsBadScenario() {
	// GOAL: Verify check fails on a scenario with an unknown action
	//
	// TEST SCENARIO: Execute check against a malformed scenario → error names the action

	scPath := suite.writeFile("bad.yaml", "name: bad\nsteps:\n  - action: teleport\n")

	_, err := executeCommand(newTestRoot(), "check", "--scenario="+scPath)

	suite.Require().Error(err, "unknown action MUST fail check")
	suite.Assert().Contains(err.Error(), "teleport")
}

// TestRunCommandSuite runs the test suite
func TestRunCommandSuite(t *testing.T) {
	suite.Run(t, new(RunCommandSuite))
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil error",
			err:  nil,
			want: "",
		},
		{
			name: "lifecycle error names phase and step",
			err: &bleloop.LifecycleError{
				Phase: bleloop.PhaseBringUp,
				Step:  "host enable",
				Err:   errors.New("no memory"),
			},
			want: "BLE bring-up failed at host enable: no memory",
		},
		{
			name: "deadline becomes timeout message",
			err:  context.DeadlineExceeded,
			want: "operation timed out",
		},
		{
			name: "plain error passes through",
			err:  errors.New("boom"),
			want: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}

func TestStartupBannerLogsOnce(t *testing.T) {
	h := testutils.NewTestHelper(t)
	sim, err := stacksim.New(stacksim.Options{}, h.Logger)
	require.NoError(t, err)
	ctrl, err := bleloop.New(sim, bleloop.Config{}, h.Logger)
	require.NoError(t, err)

	banner := &startupBanner{ctrl: ctrl}
	banner.Tick()
	banner.Tick()

	assert.Equal(t, 1, h.CountMessagesContaining("BLE stack configuration"))
}

func TestPrintSummaryQuietWhenClean(t *testing.T) {
	sim, err := stacksim.New(stacksim.Options{}, nil)
	require.NoError(t, err)
	ctrl, err := bleloop.New(sim, bleloop.Config{}, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	printSummary(&buf, ctrl)
	assert.Empty(t, buf.String())
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
