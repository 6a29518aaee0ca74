package oracle

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sijms/go-ora/v2/network"

	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/internal/provider"
)

// ORA error-number groups. The driver surfaces server errors as
// network.OracleError with a numeric code; a text rule recovers the
// ORA-NNNNN number when only message text is available.
var (
	deadlockCodes = codes(60)
	timeoutCodes  = codes(1013, 12170)
	// Credential and account failures are never retried.
	authCodes       = codes(1005, 1017, 28000)
	connectionCodes = codes(3113, 3114, 12537, 12541, 12545)
	// ORA-01000 (maximum open cursors exceeded) is a resource limit but
	// is NOT transient: the leak is in the caller, and retrying only
	// burns the remaining cursors.
	cursorLimitCodes = codes(1000)
	resourceCodes    = codes(1653, 1654, 4031, 30036)
	syntaxCodes      = codes(900, 904, 942, 6550)
)

var oraPattern = regexp.MustCompile(`ORA-(\d{1,5})`)

var connectionPhrases = []string{
	"broken pipe",
	"connection reset",
	"connection refused",
	"i/o timeout",
}

func rules() []provider.Rule {
	return []provider.Rule{
		{
			Name:     "deadlock",
			Match:    matchCode(deadlockCodes),
			Classify: classifyCode(dberr.TypeDeadlock, dberr.KeyDeadlock, true),
		},
		{
			Name:     "timeout-or-cancel",
			Match:    matchCode(timeoutCodes),
			Classify: classifyCode(dberr.TypeTimeout, dberr.KeyTimeout, true),
		},
		{
			Name:     "authentication",
			Match:    matchCode(authCodes),
			Classify: classifyCode(dberr.TypeConnectionFailure, dberr.KeyAuthFailure, false),
		},
		{
			Name:     "connection",
			Match:    matchCode(connectionCodes),
			Classify: classifyCode(dberr.TypeConnectionFailure, dberr.KeyConnectionFailure, true),
		},
		{
			Name:     "max-cursors",
			Match:    matchCode(cursorLimitCodes),
			Classify: classifyCode(dberr.TypeResourceLimit, dberr.KeyCursorLimit, false),
		},
		{
			Name:     "resource-limit",
			Match:    matchCode(resourceCodes),
			Classify: classifyCode(dberr.TypeResourceLimit, dberr.KeyResourceLimit, true),
		},
		{
			Name:     "syntax",
			Match:    matchCode(syntaxCodes),
			Classify: classifyCode(dberr.TypeSyntax, dberr.KeySyntax, false),
		},
		{
			Name:  "transport-text",
			Match: matchText(connectionPhrases),
			Classify: func(err error) *dberr.StructuredError {
				return dberr.New(dberr.TypeConnectionFailure, "ORA_TRANSPORT",
					dberr.KeyConnectionFailure).WithDetails("%v", err)
			},
		},
	}
}

func codes(cs ...int) map[int]bool {
	m := make(map[int]bool, len(cs))
	for _, c := range cs {
		m[c] = true
	}
	return m
}

// errCode extracts the ORA number from a driver error: the structured
// field when present, the ORA-NNNNN message prefix otherwise.
func errCode(err error) (int, bool) {
	var oe *network.OracleError
	if errors.As(err, &oe) {
		return oe.ErrCode, true
	}
	if m := oraPattern.FindStringSubmatch(err.Error()); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			return n, true
		}
	}
	return 0, false
}

func matchCode(set map[int]bool) func(error) bool {
	return func(err error) bool {
		code, ok := errCode(err)
		return ok && set[code]
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
		code, _ := errCode(err)
		se := dberr.New(t, fmt.Sprintf("ORA_%05d", code), key)
		se.Transient = transient
		return se.WithDetails("ORA-%05d: %v", code, err)
	}
}
