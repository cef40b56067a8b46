package cli

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// RunFile is the HCL run configuration passed with -config:
//
//	include_root = "/work/addons"
//	comments     = "remove"
//	defines      = { DEBUG = "1" }
//
//	object_store {
//	  endpoint = "localhost:9000"
//	  bucket   = "addons"
//	}
type RunFile struct {
	IncludeRoot string            `hcl:"include_root,optional"`
	Comments    string            `hcl:"comments,optional"`
	Whitespace  string            `hcl:"whitespace,optional"`
	Bugs        string            `hcl:"bugs,optional"`
	LogFormat   string            `hcl:"log_format,optional"`
	LogLevel    string            `hcl:"log_level,optional"`
	CacheSize   *int              `hcl:"cache_size,optional"`
	Defines     map[string]string `hcl:"defines,optional"`
	ObjectStore *ObjectStoreBlock `hcl:"object_store,block"`
}

// ObjectStoreBlock selects an S3 compatible bucket as the include root.
// Credentials are only read from the environment.
type ObjectStoreBlock struct {
	Endpoint string `hcl:"endpoint"`
	Bucket   string `hcl:"bucket"`
	Region   string `hcl:"region,optional"`
	Prefix   string `hcl:"prefix,optional"`
	UseSSL   *bool  `hcl:"use_ssl,optional"`
}

// LoadRunFile parses and decodes the run file at path.
func LoadRunFile(path string) (*RunFile, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse run file %s: %w", path, diags)
	}
	return decodeRunFile(f, path)
}

// ParseRunFile decodes run file source; filename is used in messages.
func ParseRunFile(src []byte, filename string) (*RunFile, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse run file %s: %w", filename, diags)
	}
	return decodeRunFile(f, filename)
}

func decodeRunFile(f *hcl.File, filename string) (*RunFile, error) {
	var rf RunFile
	if diags := gohcl.DecodeBody(f.Body, nil, &rf); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode run file %s: %w", filename, diags)
	}
	return &rf, nil
}

// settings flattens the run file into setting keys. Unset fields are left
// out so that they do not override the environment.
func (rf *RunFile) settings() map[string]string {
	s := map[string]string{}
	set := func(key, value string) {
		if value != "" {
			s[key] = value
		}
	}
	set(keyIncludeRoot, rf.IncludeRoot)
	set(keyComments, rf.Comments)
	set(keyWhitespace, rf.Whitespace)
	set(keyBugs, rf.Bugs)
	set(keyLogFormat, rf.LogFormat)
	set(keyLogLevel, rf.LogLevel)
	if rf.CacheSize != nil {
		s[keyCacheSize] = strconv.Itoa(*rf.CacheSize)
	}
	if store := rf.ObjectStore; store != nil {
		set(keyS3Endpoint, store.Endpoint)
		set(keyS3Bucket, store.Bucket)
		set(keyS3Region, store.Region)
		set(keyS3Prefix, store.Prefix)
		if store.UseSSL != nil {
			s[keyS3UseSSL] = strconv.FormatBool(*store.UseSSL)
		}
	}
	return s
}
