package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/offloadhq/offload/pkg/session"
)

// fakeSession is an in-memory Session for lifecycle tests. Execute responses
// come from a prefix-matched table; file operations are recorded.
type fakeSession struct {
	mu sync.Mutex

	// pwd is returned for the remote working-directory query.
	pwd string

	// execResponses maps command prefixes to canned stdout.
	execResponses map[string]string

	// putErr, if set, is returned by every Put.
	putErr error

	// exists, if set, overrides the default always-true Exists.
	exists func(path string) bool

	commands []string
	puts     []string
	mkdirs   []string
	gets     []string
}

var _ session.Session = (*fakeSession)(nil)

func (f *fakeSession) Execute(_ context.Context, cmd string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)

	if strings.HasPrefix(cmd, "printf '%s' \"$PWD\"") {
		return f.pwd, "", nil
	}
	for prefix, stdout := range f.execResponses {
		if strings.HasPrefix(cmd, prefix) {
			return stdout, "", nil
		}
	}
	return "", "", nil
}

func (f *fakeSession) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exists != nil {
		return f.exists(path), nil
	}
	return true, nil
}

func (f *fakeSession) MkdirAll(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mkdirs = append(f.mkdirs, path)
	return nil
}

func (f *fakeSession) Put(_ context.Context, localPath, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts = append(f.puts, remotePath)
	return nil
}

func (f *fakeSession) Get(_ context.Context, remotePath, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, remotePath)
	return nil
}

func (f *fakeSession) Close() error { return nil }

func (f *fakeSession) executedCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeSession) countCommands(prefix string) int {
	n := 0
	for _, c := range f.executedCommands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeSession) putPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...)
}

// failingPut is the error fakeSession returns when configured to reject
// transfers.
var errFailingPut = fmt.Errorf("%w: scripted failure", session.ErrTransfer)
