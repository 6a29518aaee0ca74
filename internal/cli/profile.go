package cli

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/sqlbridge/sqlbridge"
	"github.com/sqlbridge/sqlbridge/command"
)

// profileSchema is the CUE contract every profile file must satisfy.
// Validation happens before any field is interpreted, so a malformed
// profile never reaches an executor.
const profileSchema = `
#Profile: {
	database: "sqlserver" | "postgres" | "oracle"
	dsn:      string & !=""
	timeout?: string
	retry?: {
		enabled?: bool
		count?:   int & >=0
		delay?:   string
	}
	validation?:  bool
	diagnostics?: bool
	command?:     #Command
}

#Command: {
	text:  string & !=""
	kind?: "text" | "procedure"
	scalar?: bool
	multi?:  bool
	stream?: bool
	timeout?: string
	allow_list?: [...string]
	validate_identifiers?: [...string]
	parameters?: [...#Parameter]
}

#Parameter: {
	name:       string & !=""
	direction?: "in" | "out" | "inout" | "return"
	type?:      "bool" | "int16" | "int32" | "int64" | "float32" | "float64" |
		"decimal" | "string" | "fixed-string" | "binary" | "guid" |
		"date" | "time" | "timestamp" | "timestamptz" | "refcursor"
	value?:     _
	size?:      int & >=0
	precision?: int & >=0
	scale?:     int & >=0
	array?:     bool
}
`

// Profile is one YAML execution profile: a backend configuration plus an
// optional command to run.
type Profile struct {
	Database    string          `yaml:"database"`
	DSN         string          `yaml:"dsn"`
	Timeout     string          `yaml:"timeout"`
	Retry       *RetryProfile   `yaml:"retry"`
	Validation  *bool           `yaml:"validation"`
	Diagnostics bool            `yaml:"diagnostics"`
	Command     *CommandProfile `yaml:"command"`
}

// RetryProfile configures the resilience policy.
type RetryProfile struct {
	Enabled bool   `yaml:"enabled"`
	Count   int    `yaml:"count"`
	Delay   string `yaml:"delay"`
}

// CommandProfile describes the command to execute.
type CommandProfile struct {
	Text                string             `yaml:"text"`
	Kind                string             `yaml:"kind"`
	Scalar              bool               `yaml:"scalar"`
	Multi               bool               `yaml:"multi"`
	Stream              bool               `yaml:"stream"`
	Timeout             string             `yaml:"timeout"`
	AllowList           []string           `yaml:"allow_list"`
	ValidateIdentifiers []string           `yaml:"validate_identifiers"`
	Parameters          []ParameterProfile `yaml:"parameters"`
}

// ParameterProfile describes one bind value.
type ParameterProfile struct {
	Name      string `yaml:"name"`
	Direction string `yaml:"direction"`
	Type      string `yaml:"type"`
	Value     any    `yaml:"value"`
	Size      int    `yaml:"size"`
	Precision int    `yaml:"precision"`
	Scale     int    `yaml:"scale"`
	Array     bool   `yaml:"array"`
}

// LoadProfile reads, schema-validates, and decodes a profile file.
func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "reading profile", err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, WrapExitError(ExitFailure, "parsing profile YAML", err)
	}
	if err := validateAgainstSchema(generic); err != nil {
		return nil, WrapExitError(ExitFailure, "profile does not match schema", err)
	}

	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, WrapExitError(ExitFailure, "decoding profile", err)
	}
	return &p, nil
}

// validateAgainstSchema unifies the decoded document with #Profile.
func validateAgainstSchema(doc map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(profileSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling profile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Profile"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("resolving profile schema: %w", err)
	}

	val := ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	unified := def.Unify(val)
	if err := unified.Err(); err != nil {
		return err
	}
	return unified.Validate(cue.Concrete(false))
}

var directionNames = map[string]command.Direction{
	"":       command.In,
	"in":     command.In,
	"out":    command.Out,
	"inout":  command.InOut,
	"return": command.ReturnValue,
}

var typeNames = map[string]command.DataType{
	"":             command.TypeUnspecified,
	"bool":         command.TypeBool,
	"int16":        command.TypeInt16,
	"int32":        command.TypeInt32,
	"int64":        command.TypeInt64,
	"float32":      command.TypeFloat32,
	"float64":      command.TypeFloat64,
	"decimal":      command.TypeDecimal,
	"string":       command.TypeString,
	"fixed-string": command.TypeFixedString,
	"binary":       command.TypeBinary,
	"guid":         command.TypeGUID,
	"date":         command.TypeDate,
	"time":         command.TypeTime,
	"timestamp":    command.TypeTimestamp,
	"timestamptz":  command.TypeTimestampTZ,
	"refcursor":    command.TypeRefCursor,
}

// ExecutorConfig converts the profile into an executor configuration.
func (p *Profile) ExecutorConfig() (sqlbridge.Config, error) {
	cfg := sqlbridge.Config{
		DatabaseType:      sqlbridge.DatabaseType(p.Database),
		ConnectionString:  p.DSN,
		EnableDiagnostics: p.Diagnostics,
		EnableValidation:  true,
	}
	if p.Validation != nil {
		cfg.EnableValidation = *p.Validation
	}

	if p.Timeout != "" {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return cfg, fmt.Errorf("timeout: %w", err)
		}
		cfg.CommandTimeout = d
	}

	if p.Retry != nil {
		cfg.EnableRetry = p.Retry.Enabled
		cfg.RetryCount = p.Retry.Count
		if p.Retry.Delay != "" {
			d, err := time.ParseDuration(p.Retry.Delay)
			if err != nil {
				return cfg, fmt.Errorf("retry.delay: %w", err)
			}
			cfg.RetryDelay = d
		}
	}
	return cfg, nil
}

// Definition converts the profile's command block into a neutral command
// definition.
func (p *Profile) Definition() (*command.Definition, error) {
	if p.Command == nil {
		return nil, NewExitError(ExitFailure, "profile has no command block")
	}
	c := p.Command

	def := &command.Definition{
		Text:                c.Text,
		AllowList:           c.AllowList,
		ValidateIdentifiers: c.ValidateIdentifiers,
		Hints: command.Hints{
			Scalar:      c.Scalar,
			MultiResult: c.Multi,
			Streaming:   c.Stream,
		},
	}
	if c.Kind == "procedure" {
		def.Kind = command.StoredProcedure
	}
	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return nil, fmt.Errorf("command.timeout: %w", err)
		}
		def.Timeout = d
	}

	for _, pp := range c.Parameters {
		dir, ok := directionNames[pp.Direction]
		if !ok {
			return nil, fmt.Errorf("parameter %q: unknown direction %q", pp.Name, pp.Direction)
		}
		dt, ok := typeNames[pp.Type]
		if !ok {
			return nil, fmt.Errorf("parameter %q: unknown type %q", pp.Name, pp.Type)
		}
		def.Parameters = append(def.Parameters, command.Parameter{
			Name:         pp.Name,
			Direction:    dir,
			DataType:     dt,
			Value:        pp.Value,
			Size:         pp.Size,
			Precision:    pp.Precision,
			Scale:        pp.Scale,
			ArrayBinding: pp.Array,
		})
	}
	return def, nil
}
