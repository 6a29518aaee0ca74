package postgres

import (
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/internal/provider"
)

// SQLSTATE is the stable signal for PostgreSQL: rules match full codes
// first, then two-character classes, then message text.
var (
	deadlockCodes = codes("40P01", "40001")
	timeoutCodes  = codes("57014")
	// Class 28 (invalid authorization) is non-transient despite living
	// in the connection category.
	authCodes     = codes("28000", "28P01")
	resourceCodes = codes("53000", "53100", "53200", "53300", "53400", "55006", "55P03")
)

var connectionClasses = map[string]bool{
	"08": true, // connection exception
	"57": true, // operator intervention (admin shutdown, crash shutdown)
}

var syntaxClasses = map[string]bool{
	"42": true, // syntax error or access rule violation
	"26": true, // invalid SQL statement name
}

var connectionPhrases = []string{
	"terminating connection",
	"broken pipe",
	"connection refused",
	"connection reset",
	"unexpected eof",
}

func rules() []provider.Rule {
	return []provider.Rule{
		{
			Name:     "deadlock-or-serialization",
			Match:    matchCode(deadlockCodes),
			Classify: classifyCode(dberr.TypeDeadlock, dberr.KeyDeadlock, true),
		},
		{
			Name:     "statement-canceled",
			Match:    matchCode(timeoutCodes),
			Classify: classifyCode(dberr.TypeTimeout, dberr.KeyTimeout, true),
		},
		{
			Name:     "authentication",
			Match:    matchCode(authCodes),
			Classify: classifyCode(dberr.TypeConnectionFailure, dberr.KeyAuthFailure, false),
		},
		{
			Name:     "resource-limit",
			Match:    matchCode(resourceCodes),
			Classify: classifyCode(dberr.TypeResourceLimit, dberr.KeyResourceLimit, true),
		},
		{
			Name:     "connection-class",
			Match:    matchClass(connectionClasses),
			Classify: classifyCode(dberr.TypeConnectionFailure, dberr.KeyConnectionFailure, true),
		},
		{
			Name:     "syntax-class",
			Match:    matchClass(syntaxClasses),
			Classify: classifyCode(dberr.TypeSyntax, dberr.KeySyntax, false),
		},
		{
			Name:  "transport-text",
			Match: matchText(connectionPhrases),
			Classify: func(err error) *dberr.StructuredError {
				return dberr.New(dberr.TypeConnectionFailure, "PG_TRANSPORT",
					dberr.KeyConnectionFailure).WithDetails("%v", err)
			},
		},
	}
}

func codes(cs ...string) map[pq.ErrorCode]bool {
	m := make(map[pq.ErrorCode]bool, len(cs))
	for _, c := range cs {
		m[pq.ErrorCode(c)] = true
	}
	return m
}

func matchCode(set map[pq.ErrorCode]bool) func(error) bool {
	return func(err error) bool {
		var pe *pq.Error
		return errors.As(err, &pe) && set[pe.Code]
	}
}

func matchClass(classes map[string]bool) func(error) bool {
	return func(err error) bool {
		var pe *pq.Error
		return errors.As(err, &pe) && classes[string(pe.Code.Class())]
	}
}

func matchText(phrases []string) func(error) bool {
	return func(err error) bool {
		msg := strings.ToLower(err.Error())
		for _, p := range phrases {
			if strings.Contains(msg, p) {
				return true
			}
		}
		return false
	}
}

func classifyCode(t dberr.Type, key string, transient bool) func(error) *dberr.StructuredError {
	return func(err error) *dberr.StructuredError {
		var pe *pq.Error
		errors.As(err, &pe)
		se := dberr.New(t, "PG_"+string(pe.Code), key)
		se.Transient = transient
		return se.WithDetails("sqlstate=%s severity=%s: %s",
			pe.Code, pe.Severity, pe.Message)
	}
}
