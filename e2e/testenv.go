package e2e

import (
	"fmt"
	"testing"

	"github.com/mailcatch/mailcatch"
)

// testEnvironmentConfig exposes options that should be available and
// perhaps changeable when spinning up a test environment. While they
// may not vary between tests, they shouldn't be buried inside
// functions.
type testEnvironmentConfig struct {
	extension string // content file extension for persisted mail
	withIndex bool   // attach the saved-email index
}

// testEnvironment manages all dependencies required to run one full
// capture loop. Callers should create this via startTestEnvironment.
type testEnvironment struct {
	handler *mailcatch.EmailHandler
	saveDir string
}

// startTestEnvironment opens a handler on an ephemeral loopback port with
// persistence pointed at a fresh temp directory. Callers should defer a
// call to tearDown.
//
// Note that if startTestEnvironment fails, it will return an error along
// with whatever shreds of a test environment we've set up so far so you
// can tear it down (i.e., it won't just be the zero value).
func startTestEnvironment(t *testing.T, c testEnvironmentConfig) (*testEnvironment, error) {
	te := &testEnvironment{saveDir: t.TempDir()}

	opts := appConfigOptions{
		Host:      "127.0.0.1",
		Port:      0,
		SaveDir:   te.saveDir,
		Extension: c.extension,
	}
	if c.withIndex {
		opts.IndexDir = t.TempDir()
	}

	config, err := createUserConfig(opts)
	if err != nil {
		return te, err
	}

	h, err := mailcatch.New(*config)
	if err != nil {
		return te, err
	}
	te.handler = h

	if err := h.Open(); err != nil {
		return te, err
	}

	return te, nil
}

// tearDown returns the testEnvironment to its state prior to start. Designed
// to call with defer
func (te *testEnvironment) tearDown() {
	if te.handler == nil {
		return
	}

	// We're not expecting this to return an error since it's designed to
	// call with defer. Instead we panic, and hopefully we can prevent any
	// panic-causing error from happening again.
	if err := te.handler.Close(); err != nil {
		panic(fmt.Sprintf("can't close the capture handler: %v", err))
	}
}
