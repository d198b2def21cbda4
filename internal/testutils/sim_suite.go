package testutils

import (
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"

	"github.com/bleloop/bleloop/internal/stacksim"
)

// SimSuite is the reusable base for pipeline tests: a captured logger
// shared across the suite and a fresh stack simulator per test.
//
// Basic usage:
//
//	type DispatchSuite struct {
//	    testutils.SimSuite
//	}
//
//	func TestDispatchSuite(t *testing.T) {
//	    suite.Run(t, new(DispatchSuite))
//	}
//
// Suites that need simulator options override SetupTest, set SimOptions
// first and then call the embedded SetupTest:
//
//	func (s *SlowSuite) SetupTest() {
//	    s.SimOptions.StatusDelay = 20 * time.Millisecond
//	    s.SimSuite.SetupTest()
//	}
type SimSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger
	Hook   *logrustest.Hook

	// SimOptions configure the simulator created for each test.
	SimOptions stacksim.Options

	Sim *stacksim.Sim
}

// SetupSuite runs once before all tests in the suite.
func (s *SimSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Hook = s.Helper.Hook
}

// SetupTest resets the log capture and builds a fresh simulator.
func (s *SimSuite) SetupTest() {
	s.Hook.Reset()
	sim, err := stacksim.New(s.SimOptions, s.Logger)
	s.Require().NoError(err)
	s.Sim = sim
}
