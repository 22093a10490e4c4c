package submitter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/offloadhq/offload/pkg/session"
)

// scriptedSession is a Session whose Execute responses are driven by a list
// of prefix-matched rules. Rules are consulted in order; a rule with Times>0
// is consumed after that many matches.
type scriptedSession struct {
	mu       sync.Mutex
	rules    []execRule
	commands []string
}

type execRule struct {
	Prefix string
	Stdout string
	Stderr string
	Err    error
	Times  int

	hits int
}

var _ session.Session = (*scriptedSession)(nil)

func (s *scriptedSession) Execute(_ context.Context, cmd string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)

	for i := range s.rules {
		r := &s.rules[i]
		if r.Times > 0 && r.hits >= r.Times {
			continue
		}
		if strings.HasPrefix(cmd, r.Prefix) {
			r.hits++
			return r.Stdout, r.Stderr, r.Err
		}
	}
	return "", "", fmt.Errorf("no scripted response for command %q", cmd)
}

func (s *scriptedSession) Exists(context.Context, string) (bool, error) { return true, nil }
func (s *scriptedSession) MkdirAll(context.Context, string) error      { return nil }
func (s *scriptedSession) Put(context.Context, string, string) error   { return nil }
func (s *scriptedSession) Get(context.Context, string, string) error   { return nil }
func (s *scriptedSession) Close() error                                { return nil }

func (s *scriptedSession) executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}
