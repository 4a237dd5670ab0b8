package store

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"sync"

	"modernc.org/sqlite"
)

var (
	regexpOnce  sync.Once
	regexpErr   error
	regexpCache sync.Map // pattern -> *regexp.Regexp
)

// registerRegexp installs the regexp(pattern, value) function that backs
// "value REGEXP pattern" on every SQLite connection opened afterwards.
func registerRegexp() error {
	regexpOnce.Do(func() {
		regexpErr = sqlite.RegisterDeterministicScalarFunction("regexp", 2, sqliteRegexp)
	})
	return regexpErr
}

func sqliteRegexp(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	pattern, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("regexp: pattern must be text, got %T", args[0])
	}
	re, err := compileCached(pattern)
	if err != nil {
		return nil, err
	}

	var subject string
	switch v := args[1].(type) {
	case string:
		subject = v
	case []byte:
		subject = string(v)
	default:
		subject = fmt.Sprint(v)
	}
	if re.MatchString(subject) {
		return int64(1), nil
	}
	return int64(0), nil
}

func compileCached(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexpCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regexp: %w", err)
	}
	regexpCache.Store(pattern, re)
	return re, nil
}
