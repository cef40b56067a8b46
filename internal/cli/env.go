package cli

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// envPrefix starts the name of every environment variable read by arma-cfg.
const envPrefix = "ARMACFG_"

// Setting keys shared by the environment, the run file and the flags.
const (
	keyIncludeRoot = "include_root"
	keyComments    = "comments"
	keyWhitespace  = "whitespace"
	keyBugs        = "bugs"
	keyLogFormat   = "log_format"
	keyLogLevel    = "log_level"
	keyCacheSize   = "cache_size"
	keyDefines     = "defines"
	keyS3Endpoint  = "s3_endpoint"
	keyS3Region    = "s3_region"
	keyS3Bucket    = "s3_bucket"
	keyS3Prefix    = "s3_prefix"
	keyS3AccessKey = "s3_access_key"
	keyS3SecretKey = "s3_secret_key"
	keyS3UseSSL    = "s3_use_ssl"
)

var settingKeys = []string{
	keyIncludeRoot, keyComments, keyWhitespace, keyBugs, keyLogFormat, keyLogLevel,
	keyCacheSize, keyDefines, keyS3Endpoint, keyS3Region, keyS3Bucket, keyS3Prefix,
	keyS3AccessKey, keyS3SecretKey, keyS3UseSSL,
}

func envName(key string) string {
	return envPrefix + strings.ToUpper(key)
}

// loadEnv reads the settings from the .env file at path and the process
// environment, which wins over the file. A missing file is only an error
// when required is set.
func loadEnv(path string, required bool) (map[string]string, error) {
	fileVars := map[string]string{}
	if path != "" {
		vars, err := godotenv.Read(path)
		switch {
		case err == nil:
			fileVars = vars
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return nil, err
		}
	}

	s := map[string]string{}
	for _, key := range settingKeys {
		name := envName(key)
		if v, ok := os.LookupEnv(name); ok {
			s[key] = strings.TrimSpace(v)
		} else if v, ok := fileVars[name]; ok {
			s[key] = strings.TrimSpace(v)
		}
	}
	return s, nil
}
