package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/harun/sdkbridge/internal/observability"
	"github.com/harun/sdkbridge/pkg/reflection"
	"github.com/harun/sdkbridge/pkg/rules"
)

// errNotApplicable marks a strategy that has nothing to try
var errNotApplicable = errors.New("strategy not applicable")

// construct walks the rule set's construction strategies in order and
// returns the first instance built
func (b *Bridge) construct(ctx context.Context, ownerPath string, rs *rules.RuleSet) (any, error) {
	sig, err := b.provider.Constructor(ctx, ownerPath)
	if err != nil {
		return nil, &Error{Op: "construct", Kind: ErrConstruction, Ref: ownerPath, Err: err}
	}

	strategies := rs.Construction.Strategies
	if len(strategies) == 0 {
		strategies = rules.Defaults().Construction.Strategies
	}

	var failures []error
	for _, strategy := range strategies {
		args, err := b.strategyArgs(strategy, sig, rs)
		if errors.Is(err, errNotApplicable) {
			continue
		}
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", strategy, err))
			continue
		}

		inst, err := b.provider.Construct(ctx, ownerPath, args)
		observability.RecordConstruction(strategy, err == nil)
		if err != nil {
			b.logger.Debug().
				Err(err).
				Str("owner", ownerPath).
				Str("strategy", strategy).
				Msg("Construction attempt failed")
			failures = append(failures, fmt.Errorf("%s: %w", strategy, err))
			continue
		}

		b.logger.Debug().
			Str("owner", ownerPath).
			Str("strategy", strategy).
			Msg("Owner constructed")
		return inst, nil
	}

	if len(failures) == 0 {
		failures = append(failures, errors.New("no construction strategy applies"))
	}
	return nil, &Error{Op: "construct", Kind: ErrConstruction, Ref: ownerPath, Err: errors.Join(failures...)}
}

// strategyArgs lays out constructor arguments for one strategy. A nil
// entry leaves the parameter at its default or zero value.
func (b *Bridge) strategyArgs(strategy string, sig *reflection.Signature, rs *rules.RuleSet) ([]any, error) {
	params := positional(sig)

	switch strategy {
	case rules.StrategyNoArgs:
		for _, p := range params {
			if p.Required() {
				return nil, errNotApplicable
			}
		}
		return nil, nil

	case rules.StrategyEnvCredentials:
		cred := b.credential(rs)
		if cred == "" {
			return nil, errNotApplicable
		}
		return fillFirstString(params, cred)

	case rules.StrategyConfigFile:
		path := firstExisting(rs.Construction.ConfigFiles)
		if path == "" {
			return nil, errNotApplicable
		}
		return fillFirstString(params, path)

	case rules.StrategyAnonymous:
		return make([]any, len(params)), nil
	}
	return nil, fmt.Errorf("unknown construction strategy %q", strategy)
}

func positional(sig *reflection.Signature) []reflection.Param {
	if sig == nil {
		return nil
	}
	var out []reflection.Param
	for _, p := range sig.Params {
		if p.Kind == reflection.Positional {
			out = append(out, p)
		}
	}
	return out
}

func fillFirstString(params []reflection.Param, value string) ([]any, error) {
	args := make([]any, len(params))
	for i, p := range params {
		if isStringParam(p) {
			args[i] = value
			return args, nil
		}
	}
	return nil, errNotApplicable
}

func isStringParam(p reflection.Param) bool {
	if t := p.GoType(); t != nil {
		return t.Kind() == reflect.String
	}
	switch strings.ToLower(p.Type) {
	case "str", "string", "":
		return true
	}
	return false
}

// credential returns the first non-empty credential environment variable
func (b *Bridge) credential(rs *rules.RuleSet) string {
	for _, name := range rs.CredentialEnv() {
		if v := strings.TrimSpace(b.getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if strings.HasPrefix(p, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				continue
			}
			p = filepath.Join(home, p[2:])
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
