package rules

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/rs/zerolog/log"
)

var patternCache sync.Map // pattern string -> *regexp.Regexp

// CompilePattern turns a rule pattern into a regexp.
//
// "/body/flags" is treated as a delimited literal when the string starts with
// '/' and has a second '/' after it; anything else is a case-insensitive body.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}

	body, flags := splitPattern(pattern)
	prefix := ""
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(prefix, f) {
				prefix += string(f)
			}
		case 'g', 'u', 'y', 'd':
			// no Go equivalent; matching is unaffected
		default:
			return nil, fmt.Errorf("unsupported regex flag %q in %s", f, pattern)
		}
	}
	if prefix != "" {
		body = "(?" + prefix + ")" + body
	}

	re, err := regexp.Compile(body)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

func splitPattern(pattern string) (body, flags string) {
	if strings.HasPrefix(pattern, "/") {
		last := strings.LastIndex(pattern, "/")
		if last > 0 {
			return pattern[1:last], pattern[last+1:]
		}
	}
	return pattern, "i"
}

// Match returns the first enabled rule, in slice order, whose pattern matches url.
// Rules whose pattern does not compile are skipped.
func Match(url string, rules []*Rule) (*Rule, error) {
	for _, r := range rules {
		if r == nil || !r.Enabled {
			continue
		}
		re, err := CompilePattern(r.URLPattern)
		if err != nil {
			log.Warn().
				Err(err).
				Str("rule", r.ID).
				Str("pattern", r.URLPattern).
				Msg("Skipping rule with invalid pattern")
			continue
		}
		if re.MatchString(url) {
			log.Debug().Str("rule", r.ID).Str("url", url).Msg("Rule matched")
			return r, nil
		}
	}
	return nil, engine.NewEngineError(engine.ErrCodeNoRule, "no enabled rule matches", nil).
		WithDetail("url", url)
}
