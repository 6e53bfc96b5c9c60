package guardrails

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"
)

// DefaultMaxLength caps the characters of one customer message.
const DefaultMaxLength = 2000

// RuleID names the check that rejected a message.
type RuleID string

const (
	RuleEmpty     RuleID = "empty"
	RuleMaxLength RuleID = "max_length"
	RuleBlocked   RuleID = "blocked_pattern"
	RuleRegex     RuleID = "blocked_regex"
)

// Config configures message validation.
type Config struct {
	MaxLength       int      `json:"max_length" yaml:"max_length"`
	BlockedPatterns []string `json:"blocked_patterns,omitempty" yaml:"blocked_patterns,omitempty"`
	BlockedRegex    []string `json:"blocked_regex,omitempty" yaml:"blocked_regex,omitempty"`
	CaseSensitive   bool     `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty"`
}

// DefaultConfig rejects common prompt-injection phrasing.
func DefaultConfig() Config {
	return Config{
		MaxLength: DefaultMaxLength,
		BlockedPatterns: []string{
			"*ignore previous instructions*",
			"*ignore all previous instructions*",
			"*bỏ qua mọi hướng dẫn*",
		},
	}
}

// Violation describes why a message was rejected.
type Violation struct {
	Rule   RuleID
	Reason string
	Match  string
}

func (v *Violation) Error() string {
	if v.Match != "" {
		return fmt.Sprintf("%s: %s (%s)", v.Rule, v.Reason, v.Match)
	}
	return fmt.Sprintf("%s: %s", v.Rule, v.Reason)
}

type globRule struct {
	pattern string
	g       glob.Glob
}

// Validator checks customer messages before they reach the model.
type Validator struct {
	cfg   Config
	globs []globRule
	regex []*regexp.Regexp
}

// New compiles the configured patterns.
func New(cfg Config) (*Validator, error) {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}

	v := &Validator{cfg: cfg}
	for _, pattern := range cfg.BlockedPatterns {
		p := pattern
		if !cfg.CaseSensitive {
			p = strings.ToLower(p)
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked pattern %q: %w", pattern, err)
		}
		v.globs = append(v.globs, globRule{pattern: pattern, g: g})
	}
	for _, expr := range cfg.BlockedRegex {
		if !cfg.CaseSensitive && !strings.HasPrefix(expr, "(?i)") {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", expr, err)
		}
		v.regex = append(v.regex, re)
	}
	return v, nil
}

// MaxLength returns the effective length limit in characters.
func (v *Validator) MaxLength() int {
	return v.cfg.MaxLength
}

// Validate returns a *Violation when content must not be sent upstream.
func (v *Validator) Validate(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return &Violation{Rule: RuleEmpty, Reason: "message is empty"}
	}
	if n := utf8.RuneCountInString(content); n > v.cfg.MaxLength {
		return &Violation{
			Rule:   RuleMaxLength,
			Reason: fmt.Sprintf("message has %d characters, limit is %d", n, v.cfg.MaxLength),
		}
	}

	text := trimmed
	if !v.cfg.CaseSensitive {
		text = strings.ToLower(text)
	}
	for _, rule := range v.globs {
		if rule.g.Match(text) {
			return &Violation{Rule: RuleBlocked, Reason: "matched prohibited content", Match: rule.pattern}
		}
	}
	for _, re := range v.regex {
		if re.MatchString(trimmed) {
			return &Violation{Rule: RuleRegex, Reason: "matched prohibited content", Match: re.String()}
		}
	}
	return nil
}
