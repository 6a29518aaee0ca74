package provider

import "github.com/sqlbridge/sqlbridge/dberr"

// Rule is one ordered translation step: a predicate over the native error
// and the classification it yields. Rules match on the most stable signal
// first (numeric code, SQLSTATE); text-content rules come later; the
// generic Unknown fallback is implicit.
type Rule struct {
	// Name labels the rule for diagnostics and rule-table tests.
	Name string

	// Match reports whether this rule claims the error.
	Match func(err error) bool

	// Classify builds the structured error. Must be deterministic:
	// translating the same error twice yields identical results.
	Classify func(err error) *dberr.StructuredError
}

// Translator applies an ordered rule list with the shared context /
// dead-connection pre-step and the Unknown fallback.
type Translator struct {
	rules []Rule
}

// NewTranslator builds a translator over rules, evaluated in order.
func NewTranslator(rules []Rule) *Translator {
	return &Translator{rules: rules}
}

// Rules exposes the rule list for table-driven tests.
func (t *Translator) Rules() []Rule { return t.rules }

// Translate classifies err. Context cancellation, deadline expiry, and
// driver bad-connection signals are handled before backend rules so all
// backends agree on them.
func (t *Translator) Translate(err error) *dberr.StructuredError {
	if err == nil {
		return nil
	}
	if se, ok := dberr.As(err); ok {
		// Already structured; translation is idempotent.
		return se
	}
	if se := dberr.FromContext(err); se != nil {
		return se
	}
	for _, r := range t.rules {
		if r.Match(err) {
			return r.Classify(err)
		}
	}
	return dberr.Unknown(err)
}
