package sqlserver

import (
	"errors"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/internal/provider"
)

// Error-number groups. The driver surfaces server errors as mssql.Error
// with a stable Number; rules match on it before any text inspection.
var (
	deadlockNumbers = numbers(1205)
	timeoutNumbers  = numbers(-2, 8645)
	// Login and permission failures sit in the connection category but
	// are explicitly non-transient: retrying bad credentials only locks
	// accounts faster.
	authNumbers       = numbers(4060, 18452, 18456, 18461)
	connectionNumbers = numbers(233, 10053, 10054, 10060, 40197, 40501, 40613)
	resourceNumbers   = numbers(701, 8651, 10928, 10929)
	syntaxNumbers     = numbers(102, 105, 156, 207, 208, 2812, 4145)
)

// connectionPhrases is the text fallback for transport failures the
// server never got to report a number for.
var connectionPhrases = []string{
	"transport-level error",
	"broken pipe",
	"i/o timeout",
	"connection reset",
	"connection refused",
}

func rules() []provider.Rule {
	return []provider.Rule{
		{
			Name:     "deadlock-victim",
			Match:    matchNumber(deadlockNumbers),
			Classify: classifyNumber(dberr.TypeDeadlock, dberr.KeyDeadlock, true),
		},
		{
			Name:     "statement-timeout",
			Match:    matchNumber(timeoutNumbers),
			Classify: classifyNumber(dberr.TypeTimeout, dberr.KeyTimeout, true),
		},
		{
			Name:     "authentication",
			Match:    matchNumber(authNumbers),
			Classify: classifyNumber(dberr.TypeConnectionFailure, dberr.KeyAuthFailure, false),
		},
		{
			Name:     "connection",
			Match:    matchNumber(connectionNumbers),
			Classify: classifyNumber(dberr.TypeConnectionFailure, dberr.KeyConnectionFailure, true),
		},
		{
			Name:     "resource-limit",
			Match:    matchNumber(resourceNumbers),
			Classify: classifyNumber(dberr.TypeResourceLimit, dberr.KeyResourceLimit, true),
		},
		{
			Name:     "syntax",
			Match:    matchNumber(syntaxNumbers),
			Classify: classifyNumber(dberr.TypeSyntax, dberr.KeySyntax, false),
		},
		{
			Name:  "transport-text",
			Match: matchText(connectionPhrases),
			Classify: func(err error) *dberr.StructuredError {
				return dberr.New(dberr.TypeConnectionFailure, "MSSQL_TRANSPORT",
					dberr.KeyConnectionFailure).WithDetails("%v", err)
			},
		},
	}
}

func numbers(ns ...int32) map[int32]bool {
	m := make(map[int32]bool, len(ns))
	for _, n := range ns {
		m[n] = true
	}
	return m
}

func matchNumber(set map[int32]bool) func(error) bool {
	return func(err error) bool {
		var me mssql.Error
		return errors.As(err, &me) && set[me.Number]
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

func classifyNumber(t dberr.Type, key string, transient bool) func(error) *dberr.StructuredError {
	return func(err error) *dberr.StructuredError {
		var me mssql.Error
		errors.As(err, &me)
		se := dberr.New(t, fmt.Sprintf("MSSQL_%d", me.Number), key)
		se.Transient = transient
		return se.WithDetails("number=%d class=%d state=%d: %s",
			me.Number, me.Class, me.State, me.Message)
	}
}
