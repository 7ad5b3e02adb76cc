package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestScripts drives the end-to-end scenarios under testdata/*.txt against a
// live Server, grounded on the teacher's own direct rsc.io/script
// dependency -- declared in its go.mod but never itself called from a
// go file there -- wired here the way the package is meant to be used: a
// small DSL for multi-step HTTP scenarios instead of hand-rolled
// httptest boilerplate per case.
func TestScripts(t *testing.T) {
	_, ts := newTestServer(t)

	engine := script.NewEngine()
	engine.Cmds["httpget"] = script.Command(
		script.CmdUsage{
			Summary: "GET a path from the test server and print the status and body",
			Args:    "path",
		},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("usage: httpget path")
			}
			resp, err := http.Get(ts.URL + args[0])
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			stdout := fmt.Sprintf("%d\n%s", resp.StatusCode, body)
			return func(*script.State) (string, string, error) {
				return stdout, "", nil
			}, nil
		},
	)
	engine.Cmds["httppost"] = script.Command(
		script.CmdUsage{
			Summary: "POST a path (with query string) to the test server and print the status",
			Args:    "path",
		},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("usage: httppost path")
			}
			resp, err := http.Post(ts.URL+args[0], "application/octet-stream", nil)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			stdout := fmt.Sprintf("%d\n", resp.StatusCode)
			return func(*script.State) (string, string, error) {
				return stdout, "", nil
			}, nil
		},
	)

	scripttest.Run(t, context.Background(), engine, os.Environ(), "testdata/*.txt")
}
