package dberr

import (
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Localization keys. Each StructuredError carries one of these plus its
// formatting parameters; rendering happens at the edge via a Printer so
// hosts can install additional languages.
const (
	KeyTimeout           = "dberr.timeout"
	KeyCanceled          = "dberr.canceled"
	KeyDeadlock          = "dberr.deadlock"
	KeyConnectionFailure = "dberr.connection_failure"
	KeyAuthFailure       = "dberr.auth_failure"
	KeyResourceLimit     = "dberr.resource_limit"
	KeyCursorLimit       = "dberr.cursor_limit"
	KeySyntax            = "dberr.syntax"
	KeyUnknown           = "dberr.unknown"

	KeyValAllowList       = "dberr.validation.allow_list"
	KeyValIdentifier      = "dberr.validation.identifier"
	KeyValSizeRequired    = "dberr.validation.size_required"
	KeyValPrecision       = "dberr.validation.precision_required"
	KeyValArrayEmpty      = "dberr.validation.array_empty"
	KeyValArrayLength     = "dberr.validation.array_length"
	KeyValArrayMax        = "dberr.validation.array_max"
	KeyValArrayElemSize   = "dberr.validation.array_elem_size"
	KeyValUnsupportedType = "dberr.validation.unsupported_type"
	KeyValStreaming       = "dberr.validation.streaming_unsupported"
	KeyValEmptyText       = "dberr.validation.empty_text"
)

var (
	catalogOnce    sync.Once
	builder        *catalog.Builder
	defaultPrinter *message.Printer
)

// buildCatalog installs the built-in English messages. Hosts that need
// more languages render MessageKey/MessageParams through their own
// catalog instead.
func buildCatalog() {
	builder = catalog.NewBuilder(catalog.Fallback(language.English))

	set := func(key, msg string) {
		// SetString never fails for plain format strings.
		_ = builder.SetString(language.English, key, msg)
	}

	set(KeyTimeout, "the operation timed out")
	set(KeyCanceled, "the operation was canceled by the caller")
	set(KeyDeadlock, "the backend aborted the operation to resolve a deadlock")
	set(KeyConnectionFailure, "the backend connection failed")
	set(KeyAuthFailure, "authentication with the backend failed")
	set(KeyResourceLimit, "a backend resource limit was reached")
	set(KeyCursorLimit, "the maximum number of open cursors was exceeded")
	set(KeySyntax, "the backend rejected the statement")
	set(KeyUnknown, "the backend reported an unclassified error")

	set(KeyValAllowList, "identifier %q is not present in the allow list")
	set(KeyValIdentifier, "identifier %q is not a valid database identifier")
	set(KeyValSizeRequired, "parameter %q requires an explicit size")
	set(KeyValPrecision, "decimal parameter %q requires precision and scale")
	set(KeyValArrayEmpty, "array parameter %q must carry a non-empty slice")
	set(KeyValArrayLength, "array parameter %q has %d elements, expected %d")
	set(KeyValArrayMax, "array parameters bind %d elements, exceeding the limit of %d")
	set(KeyValArrayElemSize, "string array parameter %q requires a per-element size")
	set(KeyValUnsupportedType, "data type %v of parameter %q is not mapped for backend %q")
	set(KeyValStreaming, "backend %q does not support streaming reads")
	set(KeyValEmptyText, "command text must not be empty")

	defaultPrinter = message.NewPrinter(language.English, message.Catalog(builder))
}

// DefaultPrinter returns the built-in English printer.
func DefaultPrinter() *message.Printer {
	catalogOnce.Do(buildCatalog)
	return defaultPrinter
}

// NewPrinter returns a printer for the requested language, falling back
// to English for untranslated keys.
func NewPrinter(tag language.Tag) *message.Printer {
	catalogOnce.Do(buildCatalog)
	return message.NewPrinter(tag, message.Catalog(builder))
}

// Localize renders the error's message through p. Use DefaultPrinter for
// the built-in English catalog.
func (e *StructuredError) Localize(p *message.Printer) string {
	return p.Sprintf(e.MessageKey, e.MessageParams...)
}
