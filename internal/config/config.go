// Package config loads the optional mp4retime configuration file and merges
// it with command line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	mp4 "github.com/tetsuo/mp4retime"
	"github.com/tetsuo/mp4retime/internal/logx"
)

const (
	// ErrCodeNotFound means an explicitly named config file does not exist.
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid means the file could not be read or parsed, or holds
	// an invalid value.
	ErrCodeInvalid = "config_invalid"
)

// DefaultJobs is the batch concurrency when neither flag nor file sets it.
const DefaultJobs = 4

const maxJobs = 64

// FileNames are tried in order when no config path is given.
var FileNames = []string{"mp4retime.yaml", "mp4retime.yml", "mp4retime.toml"}

// CLIArgs carries the flags that can override the file. The *Set fields
// record whether a flag was given, so -strict=false can override
// strict: true.
type CLIArgs struct {
	ConfigPath string

	Scale mp4.Scale // set when given explicitly
	// ScaleAuto forces automatic scaling over the file's scale, for a flag
	// that was given but could not be parsed.
	ScaleAuto bool

	Strict    bool
	StrictSet bool

	Jobs    int
	JobsSet bool

	Undo    bool
	UndoSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig mirrors the config file.
type FileConfig struct {
	Scale  *float64  `yaml:"scale" toml:"scale"`
	Strict *bool     `yaml:"strict" toml:"strict"`
	Jobs   int       `yaml:"jobs" toml:"jobs"`
	Undo   *bool     `yaml:"undo" toml:"undo"`
	Log    LogConfig `yaml:"log" toml:"log"`
}

// LogConfig is the log section of the config file.
type LogConfig struct {
	Level    string `yaml:"level" toml:"level"`
	Format   string `yaml:"format" toml:"format"`
	Dir      string `yaml:"dir" toml:"dir"`
	MaxSize  uint64 `yaml:"max_size" toml:"max_size"`
	MaxFiles uint64 `yaml:"max_files" toml:"max_files"`
}

// Effective is the merged configuration the command consumes directly.
type Effective struct {
	Scale  mp4.Scale
	Strict bool
	Jobs   int
	Undo   bool // write an undo delta next to each output
	Log    logx.Options
	Source string // config file used, empty when none
}

// Error is a configuration failure carrying a stable code.
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }

// Code extracts the error code, or "" when err is not an *Error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load finds and reads the config file, then merges it with cli.
//
// An explicit cli.ConfigPath must exist. Otherwise the FileNames are tried
// in dir and a missing file means built-in defaults.
//
// Precedence: flag > file > default.
func Load(dir string, cli CLIArgs) (Effective, error) {
	path := cli.ConfigPath
	if path == "" {
		for _, name := range FileNames {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	var fc FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return Effective{}, &Error{Code: ErrCodeNotFound, Path: path, Err: err}
		}
		if err != nil {
			return Effective{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
		}
		if fc, err = decode(path, data); err != nil {
			return Effective{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
		}
	}

	eff, err := merge(cli, fc)
	if err != nil {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	eff.Source = path
	return eff, nil
}

func decode(path string, data []byte) (FileConfig, error) {
	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&fc); err != nil {
			return fc, err
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
			return fc, err
		}
	default:
		return fc, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return fc, nil
}

func merge(cli CLIArgs, fc FileConfig) (Effective, error) {
	var eff Effective

	switch {
	case cli.Scale.IsSet():
		eff.Scale = cli.Scale
	case cli.ScaleAuto:
		eff.Scale = mp4.AutoScale
	case fc.Scale != nil:
		if math.IsNaN(*fc.Scale) || math.IsInf(*fc.Scale, 0) {
			return eff, fmt.Errorf("scale must be finite, got %v", *fc.Scale)
		}
		eff.Scale = mp4.ExplicitScale(*fc.Scale)
	default:
		eff.Scale = mp4.AutoScale
	}

	if cli.StrictSet {
		eff.Strict = cli.Strict
	} else if fc.Strict != nil {
		eff.Strict = *fc.Strict
	}

	if cli.UndoSet {
		eff.Undo = cli.Undo
	} else if fc.Undo != nil {
		eff.Undo = *fc.Undo
	}

	jobs := fc.Jobs
	if cli.JobsSet {
		jobs = cli.Jobs
	}
	if jobs == 0 {
		jobs = DefaultJobs
	}
	eff.Jobs = min(max(jobs, 1), maxJobs)

	eff.Log = logx.Options{
		Level:    fc.Log.Level,
		Format:   fc.Log.Format,
		Dir:      fc.Log.Dir,
		MaxSize:  fc.Log.MaxSize,
		MaxFiles: fc.Log.MaxFiles,
	}
	if cli.LogLevelSet {
		eff.Log.Level = cli.LogLevel
	}
	if _, err := logx.ParseLevel(eff.Log.Level); err != nil {
		return eff, err
	}
	switch eff.Log.Format {
	case "", "text", "json":
	default:
		return eff, fmt.Errorf("log.format must be text or json, got %q", eff.Log.Format)
	}
	return eff, nil
}
