package command

import (
	"reflect"
	"regexp"

	"github.com/sqlbridge/sqlbridge/dberr"
)

// Validation codes. These identify programmer errors resolved before any
// backend call; they are never transient and never retried.
const (
	CodeAllowList       = "VAL_ALLOWLIST"
	CodeIdentifier      = "VAL_IDENTIFIER"
	CodeSizeRequired    = "VAL_SIZE"
	CodePrecision       = "VAL_PRECISION"
	CodeArrayEmpty      = "VAL_ARRAY_EMPTY"
	CodeArrayLength     = "VAL_ARRAY_LENGTH"
	CodeArrayElemSize   = "VAL_ARRAY_ELEM_SIZE"
	CodeUnsupportedType = "VAL_UNSUPPORTED_TYPE"
	CodeEmptyText       = "VAL_EMPTY_TEXT"
)

// identifierPattern accepts plain or dot-qualified identifiers. Quoting
// and escaping are deliberately not supported: anything fancier must be
// named on the allow list verbatim.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)*$`)

// Validate applies the structural rules every backend shares:
//
//   - Text must be non-empty.
//   - StoredProcedure names and all ValidateIdentifiers entries must be
//     well-formed and present in AllowList.
//   - Output or length-constrained string/binary parameters declare Size.
//   - Decimal parameters declare Precision and Scale.
//   - Array-binding parameters carry a non-empty slice; all array
//     parameters in one command share one element count; string arrays
//     declare a per-element Size.
//
// Returns nil when the definition passes.
func Validate(def *Definition) *dberr.StructuredError {
	if def.Text == "" {
		return dberr.NewValidation(CodeEmptyText, dberr.KeyValEmptyText)
	}

	if def.Kind == StoredProcedure {
		if err := checkIdentifier(def.Text, def.AllowList); err != nil {
			return err
		}
	}
	for _, ident := range def.ValidateIdentifiers {
		if err := checkIdentifier(ident, def.AllowList); err != nil {
			return err
		}
	}

	arrayLen := -1
	for _, p := range def.Parameters {
		if p.DataType.IsSized() && p.Direction.IsOutput() && p.Size <= 0 {
			return dberr.NewValidation(CodeSizeRequired, dberr.KeyValSizeRequired, p.Name)
		}
		if p.DataType.IsDecimal() && (p.Precision <= 0 || p.Scale < 0 || p.Scale > p.Precision) {
			return dberr.NewValidation(CodePrecision, dberr.KeyValPrecision, p.Name)
		}
		if !p.ArrayBinding {
			continue
		}

		n, ok := sliceLen(p.Value)
		if !ok || n == 0 {
			return dberr.NewValidation(CodeArrayEmpty, dberr.KeyValArrayEmpty, p.Name)
		}
		if p.DataType.IsSized() && p.Size <= 0 {
			return dberr.NewValidation(CodeArrayElemSize, dberr.KeyValArrayElemSize, p.Name)
		}
		if arrayLen == -1 {
			arrayLen = n
		} else if n != arrayLen {
			return dberr.NewValidation(CodeArrayLength, dberr.KeyValArrayLength, p.Name, n, arrayLen)
		}
	}

	return nil
}

// ArrayLength returns the shared element count of the definition's
// array-binding parameters, or 0 when there are none. Call Validate
// first; this assumes homogeneity already holds.
func ArrayLength(def *Definition) int {
	for _, p := range def.Parameters {
		if p.ArrayBinding {
			if n, ok := sliceLen(p.Value); ok {
				return n
			}
		}
	}
	return 0
}

func checkIdentifier(ident string, allowList []string) *dberr.StructuredError {
	if !identifierPattern.MatchString(ident) {
		return dberr.NewValidation(CodeIdentifier, dberr.KeyValIdentifier, ident)
	}
	for _, allowed := range allowList {
		if ident == allowed {
			return nil
		}
	}
	return dberr.NewValidation(CodeAllowList, dberr.KeyValAllowList, ident)
}

func sliceLen(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return 0, false
	}
	return rv.Len(), true
}
