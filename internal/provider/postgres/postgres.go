// Package postgres binds neutral command definitions to PostgreSQL via
// github.com/lib/pq.
//
// PostgreSQL has no native output-parameter channel over the wire
// protocol: function OUT parameters come back as columns of the result
// row, and multiple result sets are emulated with refcursors that must be
// FETCHed inside the same transaction. The binder therefore rewrites
// named parameters to positional $n binds, marks outputs as row-sourced,
// and fetches cursor tables by name.
package postgres

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/sqlbridge/sqlbridge/command"
	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/internal/provider"
	"github.com/sqlbridge/sqlbridge/result"
)

// Name is the configuration tag for this backend.
const Name = "postgres"

type postgres struct {
	translator *provider.Translator
}

// New returns the PostgreSQL provider.
func New() provider.Provider {
	return &postgres{translator: provider.NewTranslator(rules())}
}

func (p *postgres) Name() string       { return Name }
func (p *postgres) DriverName() string { return "postgres" }

func (p *postgres) Capability() provider.Capability {
	return provider.Capability{
		SupportsStreaming:              true,
		SupportsNativeMultiResult:      false,
		RequiresCursorTransactionScope: true,
		ParameterPrefix:                "",
	}
}

func (p *postgres) Translate(err error) *dberr.StructuredError {
	return p.translator.Translate(err)
}

// BuildCall rewrites the definition into positional form.
//
// Statement text may reference parameters as :name or @name; each
// reference is rewritten to the parameter's ordinal $n. Stored procedures
// become SELECT * FROM name($1, ...), which surfaces OUT parameters and
// refcursor handles as the first result row.
func (p *postgres) BuildCall(def *command.Definition) (*provider.Call, *dberr.StructuredError) {
	call := &provider.Call{}

	var inputs []command.Parameter
	for _, param := range def.Parameters {
		if param.ArrayBinding {
			return nil, dberr.NewValidation(command.CodeUnsupportedType,
				dberr.KeyValUnsupportedType, "array-binding", param.Name, Name)
		}
		name := result.StripPrefix(param.Name)

		switch param.Direction {
		case command.In, command.InOut:
			inputs = append(inputs, param)
			if param.Direction == command.In {
				break
			}
			fallthrough
		case command.Out, command.ReturnValue:
			if param.DataType == command.TypeRefCursor {
				call.Cursors = append(call.Cursors, provider.CursorSlot{Name: name})
			} else {
				call.Outputs = append(call.Outputs, provider.OutputSlot{
					Name:     name,
					DataType: param.DataType,
				})
			}
		}
	}

	for _, param := range inputs {
		v, serr := inputValue(param)
		if serr != nil {
			return nil, serr
		}
		call.Args = append(call.Args, v)
	}

	switch def.Kind {
	case command.StoredProcedure:
		placeholders := make([]string, len(inputs))
		for i := range inputs {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		call.Text = fmt.Sprintf("SELECT * FROM %s(%s)",
			def.Text, strings.Join(placeholders, ", "))
		call.OutputsFromRow = true
		call.ExpectRows = true
	default:
		call.Text = rewritePlaceholders(def.Text, inputs)
	}

	return call, nil
}

// rewritePlaceholders substitutes :name and @name references with the
// parameter's ordinal $n. The scanner honors identifier boundaries, so a
// parameter name never claims the prefix of a longer identifier, and it
// passes ::casts, string literals, and quoted identifiers through
// untouched. Text already written with $n placeholders is unaffected.
func rewritePlaceholders(text string, inputs []command.Parameter) string {
	ordinals := make(map[string]int, len(inputs))
	for i, p := range inputs {
		if name := result.StripPrefix(p.Name); name != "" {
			ordinals[name] = i + 1
		}
	}
	if len(ordinals) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'':
			i = copyQuoted(&b, text, i, '\'')
		case c == '"':
			i = copyQuoted(&b, text, i, '"')
		case c == ':' && i+1 < len(text) && text[i+1] == ':':
			b.WriteString("::")
			i += 2
		case (c == ':' || c == '@') && i+1 < len(text) && isIdentStart(text[i+1]):
			j := i + 1
			for j < len(text) && isIdentRune(text[j]) {
				j++
			}
			if n, ok := ordinals[text[i+1:j]]; ok {
				b.WriteByte('$')
				b.WriteString(strconv.Itoa(n))
			} else {
				b.WriteString(text[i:j])
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// copyQuoted copies a quoted region starting at text[i], honoring the
// doubled-quote escape, and returns the index past it.
func copyQuoted(b *strings.Builder, text string, i int, quote byte) int {
	j := i + 1
	for j < len(text) {
		if text[j] == quote {
			if j+1 < len(text) && text[j+1] == quote {
				j += 2
				continue
			}
			j++
			break
		}
		j++
	}
	b.WriteString(text[i:j])
	return j
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentRune(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '$'
}

// inputValue converts a neutral input to the driver representation.
// Slice values travel as PostgreSQL arrays.
func inputValue(p command.Parameter) (any, *dberr.StructuredError) {
	if p.Value == nil {
		return nil, nil
	}
	if rv := reflect.ValueOf(p.Value); rv.Kind() == reflect.Slice {
		if _, isBytes := p.Value.([]byte); !isBytes {
			return pq.Array(p.Value), nil
		}
	}
	return p.Value, nil
}

// FetchCursorTables materializes each named refcursor with FETCH ALL.
// The queryer must be a transaction: portals do not survive outside one,
// which is why the capability table demands cursor transaction scope.
func (p *postgres) FetchCursorTables(ctx context.Context, q provider.Queryer, call *provider.Call) ([]result.Table, error) {
	tables := make([]result.Table, 0, len(call.Cursors))
	for _, cur := range call.Cursors {
		if cur.FetchName == "" {
			return nil, fmt.Errorf("refcursor %q: no cursor name returned by call", cur.Name)
		}
		rows, err := q.QueryContext(ctx,
			fmt.Sprintf("FETCH ALL IN %s", pq.QuoteIdentifier(cur.FetchName)))
		if err != nil {
			return nil, err
		}
		t, err := result.FromRows(rows)
		closeErr := rows.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
		tables = append(tables, *t)
	}
	return tables, nil
}
