package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	arma_cfg "github.com/fwessels/arma-cfg"
	"github.com/fwessels/arma-cfg/internal/cli"
	"github.com/fwessels/arma-cfg/internal/diag"
	"github.com/fwessels/arma-cfg/internal/preprocessor"
)

func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) (err error) {
	cfg, shouldExit, err := cli.Parse(args, stdout)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}
	logger := cfg.Logger(stderr)

	out := stdout
	if cfg.Output != "" {
		f, createErr := os.Create(cfg.Output)
		if createErr != nil {
			return createErr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		out = f
	}

	switch cfg.Mode {
	case cli.ModePreprocess:
		text, err := preprocessFile(ctx, cfg, cfg.Inputs[0], logger)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, text)
		return err

	case cli.ModeParse:
		c, err := load(ctx, cfg, cfg.Inputs[0], logger)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, c.Text())
		return err

	case cli.ModeCompare:
		a, err := load(ctx, cfg, cfg.Inputs[0], logger)
		if err != nil {
			return err
		}
		b, err := load(ctx, cfg, cfg.Inputs[1], logger)
		if err != nil {
			return err
		}
		if diff := arma_cfg.Diff(a, b); diff != "" {
			return &cli.ExitError{Code: 1, Message: fmt.Sprintf("%s and %s differ (-%s +%s):\n%s",
				cfg.Inputs[0], cfg.Inputs[1], filepath.Base(cfg.Inputs[0]), filepath.Base(cfg.Inputs[1]), diff)}
		}
		fmt.Fprintf(out, "%s and %s are equal\n", cfg.Inputs[0], cfg.Inputs[1])
		return nil
	}
	return fmt.Errorf("unsupported mode %s", cfg.Mode)
}

// load parses a rapified file as is and a text file after preprocessing it.
func load(ctx context.Context, cfg *cli.Config, input string, logger *slog.Logger) (*arma_cfg.Class, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, err
	}
	if arma_cfg.IsRapified(data) || strings.EqualFold(filepath.Ext(input), ".bin") {
		logger.Debug("Parsing rapified config.", "file", input)
		c, err := arma_cfg.ParseRapified(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", input, err)
		}
		return c, nil
	}

	text, err := preprocess(ctx, cfg, input, string(data), logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("Parsing text config.", "file", input)
	c, err := arma_cfg.ParseText(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", input, err)
	}
	return c, nil
}

func preprocessFile(ctx context.Context, cfg *cli.Config, input string, logger *slog.Logger) (string, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return "", err
	}
	return preprocess(ctx, cfg, input, string(data), logger)
}

func preprocess(ctx context.Context, cfg *cli.Config, input, src string, logger *slog.Logger) (string, error) {
	resolver, err := newResolver(ctx, cfg, input)
	if err != nil {
		return "", err
	}
	p := preprocessor.NewPreprocessor()
	p.Options = cfg.Options
	p.Resolver = resolver
	p.Logger = logger
	for _, d := range cfg.Defines {
		p.Define(d.Name, nil, d.Value)
	}
	p.AddListener(&diag.LogListener{Logger: logger, Source: input})

	text, res := p.ProcessString(src)
	if res.Aborted {
		return "", fmt.Errorf("%s: preprocessing aborted with %d error(s)", input, len(res.Errors()))
	}
	return text, nil
}

// newResolver resolves includes in the object store when one is configured
// and on disk otherwise, caching file contents when enabled.
func newResolver(ctx context.Context, cfg *cli.Config, input string) (preprocessor.PathResolver, error) {
	var resolver preprocessor.PathResolver
	if cfg.ObjectStore != nil {
		obj, err := preprocessor.NewObjectResolver(ctx, *cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		if cfg.IncludeRoot != "" {
			if err := obj.SetCurrentRoot(cfg.IncludeRoot); err != nil {
				return nil, err
			}
		}
		resolver = obj
	} else {
		root := cfg.IncludeRoot
		if root == "" {
			root = filepath.Dir(input)
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		dir, err := preprocessor.NewDirResolver(abs)
		if err != nil {
			return nil, err
		}
		resolver = dir
	}

	if cfg.CacheSize == 0 {
		return resolver, nil
	}
	return preprocessor.NewCachingResolver(resolver, cfg.CacheSize)
}
