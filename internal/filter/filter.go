package filter

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	regexp "github.com/wasilibs/go-re2"

	"github.com/CEE-TEE/ggshield/internal/client"
)

// IgnoredMatch is one entry of the matches-ignore list. Match holds either an
// ignore SHA or a raw matched value.
type IgnoredMatch struct {
	Name  string `yaml:"name" json:"name"`
	Match string `yaml:"match" json:"match"`
}

// IgnoreSHA computes the stable identifier of a policy break: the sha256 of
// its "{match},{type}" pairs ordered by match type.
func IgnoreSHA(pb client.PolicyBreak) string {
	matches := make([]client.Match, len(pb.Matches))
	copy(matches, pb.Matches)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchType < matches[j].MatchType
	})

	var b strings.Builder
	for _, m := range matches {
		b.WriteString(m.Match)
		b.WriteByte(',')
		b.WriteString(m.MatchType)
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(b.String())))
}

// RemoveIgnoredFromResult drops every policy break whose ignore SHA or any
// matched value appears in ignored, then refreshes the break count.
func RemoveIgnoredFromResult(result *client.ScanResult, ignored []IgnoredMatch) {
	if len(ignored) == 0 {
		return
	}
	set := make(map[string]struct{}, len(ignored))
	for _, m := range ignored {
		set[m.Match] = struct{}{}
	}

	kept := result.PolicyBreaks[:0]
	for _, pb := range result.PolicyBreaks {
		if isIgnored(pb, set) {
			continue
		}
		kept = append(kept, pb)
	}
	result.PolicyBreaks = kept
	result.PolicyBreakCount = len(kept)
}

func isIgnored(pb client.PolicyBreak, set map[string]struct{}) bool {
	if _, ok := set[IgnoreSHA(pb)]; ok {
		return true
	}
	for _, m := range pb.Matches {
		if _, ok := set[m.Match]; ok {
			return true
		}
	}
	return false
}

// RemoveResultsFromIgnoredDetectors drops the policy breaks raised by any of
// the banlisted detector types.
func RemoveResultsFromIgnoredDetectors(result *client.ScanResult, detectors map[string]struct{}) {
	if len(detectors) == 0 {
		return
	}
	kept := result.PolicyBreaks[:0]
	for _, pb := range result.PolicyBreaks {
		if _, banned := detectors[pb.BreakType]; banned {
			continue
		}
		kept = append(kept, pb)
	}
	result.PolicyBreaks = kept
	result.PolicyBreakCount = len(kept)
}

// DetectorSet builds the lookup set used by RemoveResultsFromIgnoredDetectors.
func DetectorSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Exclusions is the compiled set of path exclusion rules.
type Exclusions struct {
	globs   []string
	regexes []*regexp.Regexp
}

// NewExclusions validates the glob patterns and compiles the regexes.
func NewExclusions(globs, regexes []string) (Exclusions, error) {
	var ex Exclusions
	for _, g := range globs {
		g = filepath.ToSlash(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		if !doublestar.ValidatePattern(g) {
			return Exclusions{}, fmt.Errorf("invalid paths-ignore pattern %q", g)
		}
		ex.globs = append(ex.globs, g)
	}
	for _, r := range regexes {
		if r == "" {
			continue
		}
		re, err := regexp.Compile(r)
		if err != nil {
			return Exclusions{}, fmt.Errorf("invalid exclusion regex %q: %w", r, err)
		}
		ex.regexes = append(ex.regexes, re)
	}
	return ex, nil
}

// Empty reports whether no rule is configured.
func (ex Exclusions) Empty() bool {
	return len(ex.globs) == 0 && len(ex.regexes) == 0
}

// Patterns returns the configured glob patterns followed by the regex sources.
func (ex Exclusions) Patterns() []string {
	out := append([]string(nil), ex.globs...)
	for _, re := range ex.regexes {
		out = append(out, re.String())
	}
	return out
}

// IsFilepathExcluded reports whether path matches any exclusion rule. Globs
// are tried against the path, against the path at any depth and against its
// base name.
func IsFilepathExcluded(path string, ex Exclusions) bool {
	slashed := filepath.ToSlash(path)
	for _, g := range ex.globs {
		if matchGlob(g, slashed) || matchGlob("**/"+g, slashed) || matchGlob(g, filepath.Base(path)) {
			return true
		}
	}
	for _, re := range ex.regexes {
		if re.MatchString(slashed) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, name string) bool {
	matched, err := doublestar.Match(pattern, name)
	return err == nil && matched
}
