package payload

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength bounds decoded payloads; badge codes are short.
const DefaultMaxLength = 512

var ErrPayloadTooLong = errors.New("payload too long")

type compiledRule interface {
	Apply(input string) (output string, changed bool)
}

// RuleParser parses one line into a compiled rule.
type RuleParser interface {
	CanParse(line string) bool
	Parse(line string) (compiledRule, error)
}

// Normalizer rewrites decoded QR payloads into backend check-in codes using
// rules loaded from a file.
type Normalizer struct {
	rules     []compiledRule
	maxLength int
}

// NewNormalizer loads rules from path. A blank or missing path yields a
// normalizer that only trims whitespace.
func NewNormalizer(path string, maxLength int) (*Normalizer, error) {
	return NewNormalizerWithParsers(path, maxLength, defaultRuleParsers())
}

// NewNormalizerWithParsers allows parser extension without normalizer changes.
func NewNormalizerWithParsers(path string, maxLength int, parsers []RuleParser) (*Normalizer, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if len(parsers) == 0 {
		parsers = defaultRuleParsers()
	}

	if strings.TrimSpace(path) == "" {
		return &Normalizer{maxLength: maxLength}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Normalizer{maxLength: maxLength}, nil
		}
		return nil, fmt.Errorf("failed to read payload rules %q: %w", path, err)
	}

	rules, err := parseRules(string(contents), parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payload rules %q: %w", path, err)
	}

	return &Normalizer{rules: rules, maxLength: maxLength}, nil
}

// Normalize trims the payload and applies each rule once, in file order.
func (n *Normalizer) Normalize(payload string) (string, error) {
	if !utf8.ValidString(payload) {
		return "", errors.New("payload is not valid UTF-8")
	}

	result := strings.TrimSpace(payload)
	for _, rule := range n.rules {
		if next, changed := rule.Apply(result); changed {
			result = next
		}
	}
	result = strings.TrimSpace(result)

	if utf8.RuneCountInString(result) > n.maxLength {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrPayloadTooLong, utf8.RuneCountInString(result), n.maxLength)
	}
	return result, nil
}

func (n *Normalizer) RuleCount() int {
	return len(n.rules)
}

func parseRules(contents string, parsers []RuleParser) ([]compiledRule, error) {
	lines := strings.Split(contents, "\n")
	rules := make([]compiledRule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed := false
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			rule, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			rules = append(rules, rule)
			parsed = true
			break
		}

		if !parsed {
			return nil, fmt.Errorf("line %d: unsupported rule format", index+1)
		}
	}

	return rules, nil
}

func defaultRuleParsers() []RuleParser {
	return []RuleParser{regexRuleParser{}, prefixRuleParser{}}
}

type prefixRuleParser struct{}

// CanParse accepts "PREFIX =>" lines with an empty right-hand side.
func (prefixRuleParser) CanParse(line string) bool {
	return strings.HasSuffix(line, "=>")
}

func (prefixRuleParser) Parse(line string) (compiledRule, error) {
	prefix := strings.TrimSpace(strings.TrimSuffix(line, "=>"))
	if prefix == "" {
		return nil, errors.New("prefix rule cannot be empty")
	}
	return prefixRule{prefix: prefix}, nil
}

type prefixRule struct {
	prefix string
}

func (r prefixRule) Apply(input string) (string, bool) {
	if len(input) < len(r.prefix) || !strings.EqualFold(input[:len(r.prefix)], r.prefix) {
		return input, false
	}
	return input[len(r.prefix):], true
}

type regexRuleParser struct{}

func (regexRuleParser) CanParse(line string) bool {
	return looksLikeRegexRule(line)
}

func (regexRuleParser) Parse(line string) (compiledRule, error) {
	return parseRegexRule(line)
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

// parseRegexRule reads s/pattern/replacement/flags with any non-alphanumeric
// delimiter. Rules are case-sensitive unless the i flag is given.
func parseRegexRule(line string) (compiledRule, error) {
	if len(line) < 2 {
		return nil, errors.New("invalid regex rule")
	}
	delim := line[1]
	if isAlphaNumericOrSpace(delim) {
		return nil, errors.New("regex delimiter must be non-alphanumeric")
	}

	pattern, pos, err := parseDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := parseDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	prefixFlags := ""
	global := false
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'i', 'm', 's':
			if !strings.ContainsRune(prefixFlags, flag) {
				prefixFlags += string(flag)
			}
		case 'g':
			global = true
		case ' ':
			continue
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}
	if prefixFlags != "" {
		pattern = "(?" + prefixFlags + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}

	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}

	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

func parseDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		if escaped {
			if char != delim {
				builder.WriteByte('\\')
			}
			builder.WriteByte(char)
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == delim {
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func isAlphaNumericOrSpace(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t'
}

func looksLikeRegexRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isAlphaNumericOrSpace(line[1])
}
