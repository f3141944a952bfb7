package runner

import "github.com/dkoosis/testrig/pkg/report"

// Observer receives progress events. Calls are made from the goroutine
// running the suite, in execution order.
type Observer interface {
	SuiteStarted(suite string, instances int)
	TestStarted(id TestID)
	TestFinished(result report.TestResult)
	SuiteFinished(suite string)
}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) SuiteStarted(suite string, instances int) {
	for _, o := range m {
		o.SuiteStarted(suite, instances)
	}
}

func (m MultiObserver) TestStarted(id TestID) {
	for _, o := range m {
		o.TestStarted(id)
	}
}

func (m MultiObserver) TestFinished(result report.TestResult) {
	for _, o := range m {
		o.TestFinished(result)
	}
}

func (m MultiObserver) SuiteFinished(suite string) {
	for _, o := range m {
		o.SuiteFinished(suite)
	}
}

type nopObserver struct{}

func (nopObserver) SuiteStarted(string, int) {}
func (nopObserver) TestStarted(TestID) {}
func (nopObserver) TestFinished(report.TestResult) {}
func (nopObserver) SuiteFinished(string) {}
