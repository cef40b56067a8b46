package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/fwessels/arma-cfg/internal/preprocessor"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Mode selects what arma-cfg does with its input.
type Mode int

const (
	// ModeParse parses the input and prints it as a text config.
	ModeParse Mode = iota
	// ModePreprocess prints the preprocessed input.
	ModePreprocess
	// ModeCompare reports whether a rapified and a text config are equal.
	ModeCompare
)

func (m Mode) String() string {
	switch m {
	case ModeParse:
		return "parse"
	case ModePreprocess:
		return "preprocess"
	case ModeCompare:
		return "compare"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Define is a macro predefined with -D.
type Define struct {
	Name  string
	Value string
}

// Config is the validated configuration of one arma-cfg invocation.
type Config struct {
	Mode    Mode
	Inputs  []string
	Output  string // empty for standard output
	Options preprocessor.Options
	Defines []Define

	// IncludeRoot is a directory, or a key prefix when ObjectStore is set.
	// Empty means the directory of the input.
	IncludeRoot string
	CacheSize   int
	ObjectStore *preprocessor.ObjectStoreConfig

	LogFormat string
	LogLevel  string
}

// Logger builds the logger selected by LogFormat and LogLevel.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return NewLogger(c.LogLevel, c.LogFormat, w)
}

var defaults = map[string]string{
	keyComments:   "keep",
	keyWhitespace: "strict",
	keyBugs:       "off",
	keyLogFormat:  "text",
	keyLogLevel:   "warn",
	keyCacheSize:  "64",
	keyS3UseSSL:   "true",
}

// flagKeys maps setting flags to their setting keys.
var flagKeys = map[string]string{
	"I":           keyIncludeRoot,
	"comments":    keyComments,
	"whitespace":  keyWhitespace,
	"bugs":        keyBugs,
	"log-format":  keyLogFormat,
	"log-level":   keyLogLevel,
	"cache-size":  keyCacheSize,
	"s3-endpoint": keyS3Endpoint,
	"s3-bucket":   keyS3Bucket,
	"s3-prefix":   keyS3Prefix,
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("arma-cfg", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
arma-cfg - Preprocess, parse and compare Arma config files.

Usage:
  arma-cfg [options] FILE
  arma-cfg -compare [options] FILE.bin FILE.cpp

Arguments:
  FILE
    A text config (.cpp, .hpp, .ext, ...) which is preprocessed before it is
    parsed, or a rapified config (.bin or any file starting with the magic).

Options:
`)
		flagSet.PrintDefaults()
	}

	preprocessOnly := flagSet.Bool("E", false, "Only preprocess the input and print the result.")
	compare := flagSet.Bool("compare", false, "Compare a rapified config with a text config.")
	outFlag := flagSet.String("o", "", "Write the output to this file instead of standard output.")
	runFileFlag := flagSet.String("config", "", "Path to an HCL run file.")
	envFlag := flagSet.String("env", ".env", "Path to a .env file with ARMACFG_ variables.")
	var flagDefines []string
	flagSet.Func("D", "Predefine a macro as NAME or NAME=value. May be repeated.", func(s string) error {
		flagDefines = append(flagDefines, s)
		return nil
	})
	flagSet.String("I", "", "Include root: a directory, or a key prefix with -s3-bucket. Defaults to the input's directory.")
	flagSet.String("comments", defaults[keyComments], "Comment handling. Options: 'keep', 'inline', 'block' or 'remove'.")
	flagSet.String("whitespace", defaults[keyWhitespace], "White space between '#' and a directive. Options: 'strict' or 'tolerant'.")
	flagSet.String("bugs", defaults[keyBugs], "Reproduce quirks of the game's preprocessor. Options: 'off' or 'arma'.")
	flagSet.String("log-format", defaults[keyLogFormat], "Log output format. Options: 'text' or 'json'.")
	flagSet.String("log-level", defaults[keyLogLevel], "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flagSet.String("cache-size", defaults[keyCacheSize], "Number of include files kept in memory. 0 disables the cache.")
	flagSet.String("s3-endpoint", "", "Endpoint of an S3 compatible store holding the include files.")
	flagSet.String("s3-bucket", "", "Bucket holding the include files.")
	flagSet.String("s3-prefix", "", "Key prefix of the include files within the bucket.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, usageError("%s", err.Error())
	}
	slog.Debug("Arguments parsed successfully.")

	mode := ModeParse
	switch {
	case *preprocessOnly && *compare:
		return nil, false, usageError("-E and -compare are mutually exclusive")
	case *preprocessOnly:
		mode = ModePreprocess
	case *compare:
		mode = ModeCompare
	}

	inputs := flagSet.Args()
	if len(inputs) == 0 {
		slog.Debug("No input provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	if mode == ModeCompare && len(inputs) != 2 {
		return nil, false, usageError("-compare expects a rapified and a text config, got %d files", len(inputs))
	}
	if mode != ModeCompare && len(inputs) != 1 {
		return nil, false, usageError("expected one input file, got %d", len(inputs))
	}

	envFileSet := false
	flagValues := map[string]string{}
	flagSet.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			flagValues[key] = f.Value.String()
		}
		if f.Name == "env" {
			envFileSet = true
		}
	})

	values := maps.Clone(defaults)
	env, err := loadEnv(*envFlag, envFileSet)
	if err != nil {
		return nil, false, usageError("cannot load %s: %v", *envFlag, err)
	}
	maps.Copy(values, env)

	var runFile *RunFile
	if *runFileFlag != "" {
		runFile, err = LoadRunFile(*runFileFlag)
		if err != nil {
			return nil, false, usageError("%s", err.Error())
		}
		maps.Copy(values, runFile.settings())
	}
	maps.Copy(values, flagValues)

	cfg := &Config{
		Mode:        mode,
		Inputs:      inputs,
		Output:      *outFlag,
		IncludeRoot: values[keyIncludeRoot],
	}
	if err := cfg.apply(values); err != nil {
		return nil, false, err
	}

	var defines []string
	if v := env[keyDefines]; v != "" {
		defines = append(defines, strings.Split(v, ",")...)
	}
	if runFile != nil {
		for _, name := range slices.Sorted(maps.Keys(runFile.Defines)) {
			defines = append(defines, name+"="+runFile.Defines[name])
		}
	}
	defines = append(defines, flagDefines...)
	for _, d := range defines {
		name, value := preprocessor.ParseDefine(strings.TrimSpace(d))
		if name == "" {
			return nil, false, usageError("invalid macro definition %q", d)
		}
		cfg.Defines = append(cfg.Defines, Define{Name: name, Value: value})
	}

	slog.Debug("CLI parser finished successfully.", "mode", cfg.Mode, "inputs", cfg.Inputs)
	return cfg, false, nil
}

// apply validates the merged settings into c.
func (c *Config) apply(values map[string]string) error {
	var err error
	if c.Options.Comments, err = preprocessor.ParseCommentHandling(values[keyComments]); err != nil {
		return usageError("invalid comments: %v", err)
	}
	if c.Options.Whitespace, err = preprocessor.ParseWhitespaceHandling(values[keyWhitespace]); err != nil {
		return usageError("invalid whitespace: %v", err)
	}
	if c.Options.Bugs, err = preprocessor.ParseBugReproduction(values[keyBugs]); err != nil {
		return usageError("invalid bugs: %v", err)
	}

	c.LogFormat = strings.ToLower(values[keyLogFormat])
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return usageError("invalid log-format: must be 'text' or 'json'")
	}
	c.LogLevel = strings.ToLower(values[keyLogLevel])
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	if c.CacheSize, err = strconv.Atoi(values[keyCacheSize]); err != nil || c.CacheSize < 0 {
		return usageError("invalid cache-size %q: must be a non-negative integer", values[keyCacheSize])
	}

	if values[keyS3Endpoint] != "" || values[keyS3Bucket] != "" {
		useSSL, err := strconv.ParseBool(values[keyS3UseSSL])
		if err != nil {
			return usageError("invalid %s: %v", envName(keyS3UseSSL), err)
		}
		c.ObjectStore = &preprocessor.ObjectStoreConfig{
			Endpoint:  values[keyS3Endpoint],
			Region:    values[keyS3Region],
			AccessKey: values[keyS3AccessKey],
			SecretKey: values[keyS3SecretKey],
			Bucket:    values[keyS3Bucket],
			Prefix:    values[keyS3Prefix],
			UseSSL:    useSSL,
		}
	}
	return nil
}
