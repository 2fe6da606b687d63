// Package recovery suggests what the operator can do about a failed
// connection attempt, based on the error text the surface shows.
package recovery

import (
	"regexp"
	"sort"
)

// Suggestion is one recovery hint for a failure.
type Suggestion struct {
	Error       string   // Short description of the detected problem
	Category    string   // auth, hostkey, network, release, build, project, config
	Commands    []string // Commands that may fix it
	Explanation string
	Confidence  float64
	Risky       bool // Review before running the commands
}

// Analyzer matches failure messages against known problems.
type Analyzer struct {
	rules []recoveryRule
}

type recoveryRule struct {
	name     string
	pattern  *regexp.Regexp
	category string
	suggest  func(matches []string) *Suggestion
}

// NewAnalyzer creates an analyzer with the default rules.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		rules: defaultRules(),
	}
}

// Analyze returns the suggestions for message, most confident first.
func (a *Analyzer) Analyze(message string) []*Suggestion {
	if message == "" {
		return nil
	}

	var suggestions []*Suggestion
	for _, rule := range a.rules {
		if matches := rule.pattern.FindStringSubmatch(message); matches != nil {
			if s := rule.suggest(matches); s != nil {
				suggestions = append(suggestions, s)
			}
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	return suggestions
}

// Hint returns the explanation of the best suggestion for message, or ""
// when nothing matches.
func (a *Analyzer) Hint(message string) string {
	suggestions := a.Analyze(message)
	if len(suggestions) == 0 {
		return ""
	}
	return suggestions[0].Explanation
}

func defaultRules() []recoveryRule {
	return []recoveryRule{
		{
			name:     "auth_failed",
			pattern:  regexp.MustCompile(`(?i)unable to authenticate|no supported methods remain`),
			category: "auth",
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Error:       "Authentication failed",
					Category:    "auth",
					Commands:    []string{"devremote password forget <host>", "ssh-add -l"},
					Explanation: "The server rejected every credential. Check the password or key, and forget a stale saved password.",
					Confidence:  0.9,
				}
			},
		},

		{
			name:     "host_key_mismatch",
			pattern:  regexp.MustCompile(`(?i)host key for (\S+) does not match`),
			category: "hostkey",
			suggest: func(matches []string) *Suggestion {
				host := matches[1]
				return &Suggestion{
					Error:       "Host key changed: " + host,
					Category:    "hostkey",
					Commands:    []string{"ssh-keygen -R " + host},
					Explanation: "The host presented a different key than known_hosts records. Verify the new key before removing the old entry.",
					Confidence:  0.95,
					Risky:       true,
				}
			},
		},

		{
			name:     "host_key_rejected",
			pattern:  regexp.MustCompile(`(?i)host key rejected`),
			category: "hostkey",
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Error:       "Host key not accepted",
					Category:    "hostkey",
					Explanation: "The host key was not confirmed. Answer yes to trust the host.",
					Confidence:  0.8,
				}
			},
		},

		{
			name:     "connection_refused",
			pattern:  regexp.MustCompile(`(?i)connection refused`),
			category: "network",
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Error:       "Connection refused",
					Category:    "network",
					Explanation: "Nothing is listening on the SSH port. Check that sshd is running and the port is right.",
					Confidence:  0.85,
				}
			},
		},

		{
			name:     "unknown_host",
			pattern:  regexp.MustCompile(`(?i)no such host|server misbehaving`),
			category: "network",
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Error:       "Unknown host",
					Category:    "network",
					Explanation: "The host name does not resolve. Check the spelling or the HostName in ~/.ssh/config.",
					Confidence:  0.85,
				}
			},
		},

		{
			name:     "timeout",
			pattern:  regexp.MustCompile(`(?i)i/o timeout|deadline exceeded`),
			category: "network",
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Error:       "Connection timed out",
					Category:    "network",
					Explanation: "The host did not answer in time. Check the network or raise ssh.connect_timeout.",
					Confidence:  0.6,
				}
			},
		},

		{
			name:     "no_user",
			pattern:  regexp.MustCompile(`(?i)no user for (\S+)`),
			category: "config",
			suggest: func(matches []string) *Suggestion {
				return &Suggestion{
					Error:       "No login user",
					Category:    "config",
					Commands:    []string{"devremote connect <user>@" + matches[1]},
					Explanation: "No user was given and none is configured. Connect as user@host.",
					Confidence:  0.9,
				}
			},
		},

		{
			name:     "release_missing",
			pattern:  regexp.MustCompile(`(?i)resolve (\S+) server for (\S+):.*(404|no download url)`),
			category: "release",
			suggest: func(matches []string) *Suggestion {
				return &Suggestion{
					Error:       "No " + matches[1] + " release for " + matches[2],
					Category:    "release",
					Commands:    []string{"devremote connect --channel stable <host>"},
					Explanation: "The release channel has no server build for this platform. Try another channel.",
					Confidence:  0.8,
				}
			},
		},

		{
			name:     "release_corrupt",
			pattern:  regexp.MustCompile(`(?i)checksum mismatch|corrupt gzip archive|not a gzip archive`),
			category: "release",
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Error:       "Corrupt server download",
					Category:    "release",
					Explanation: "The downloaded server binary failed verification. Retry; the bad artifact was not cached.",
					Confidence:  0.7,
				}
			},
		},

		{
			name:     "build_failed",
			pattern:  regexp.MustCompile(`(?i)failed to run command "([^"]+)"`),
			category: "build",
			suggest: func(matches []string) *Suggestion {
				return &Suggestion{
					Error:       "Build step failed: " + matches[1],
					Category:    "build",
					Commands:    []string{matches[1]},
					Explanation: "Building the development server failed. Run the command by hand to see the full output.",
					Confidence:  0.75,
				}
			},
		},

		{
			name:     "path_missing",
			pattern:  regexp.MustCompile(`(?i)(\S+) does not exist on (\S+)`),
			category: "project",
			suggest: func(matches []string) *Suggestion {
				return &Suggestion{
					Error:       "Missing remote path: " + matches[1],
					Category:    "project",
					Commands:    []string{"ssh " + matches[2] + " ls -la " + matches[1]},
					Explanation: "A requested path does not exist on the host. Check the path; relative paths start at the remote home directory.",
					Confidence:  0.7,
				}
			},
		},
	}
}
