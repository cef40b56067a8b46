package preprocessor

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r PathResolver, p string) string {
	t.Helper()
	rc, err := r.Open(p)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestDirResolver(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "macros.hpp"), []byte("#define A 1\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	_, err := NewDirResolver("relative/root")
	require.Error(t, err)

	r, err := NewDirResolver(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), r.CurrentRoot())

	loc, ok := r.Resolve("macros.hpp")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "macros.hpp"), loc)

	_, ok = r.Resolve("sub/macros.hpp")
	assert.False(t, ok, "relative paths with separators are rejected")
	_, ok = r.Resolve(`sub\macros.hpp`)
	assert.False(t, ok)

	assert.True(t, r.IsFile("macros.hpp"))
	assert.True(t, r.Exists("sub"))
	assert.False(t, r.IsFile("sub"))
	assert.False(t, r.Exists("missing.hpp"))
	assert.Equal(t, "#define A 1\n", readAll(t, r, "macros.hpp"))

	_, err = r.Open("sub/macros.hpp")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, r.SetCurrentRoot(filepath.Join(dir, "sub")))
	assert.False(t, r.IsFile("macros.hpp"))
	assert.True(t, r.IsFile(filepath.Join(dir, "macros.hpp")), "absolute paths ignore the root")
}

func TestDirResolverPreprocess(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "macros.hpp"), []byte("#define VERSION 3\n"), 0o644))
	r, err := NewDirResolver(dir)
	require.NoError(t, err)

	p := NewPreprocessor()
	p.Resolver = r
	got, res := p.ProcessString("#include \"macros.hpp\"\nversion = VERSION;\n")
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, "\n\nversion = 3;\n", got)
}

func TestMapResolver(t *testing.T) {
	r := NewMapResolver(map[string]string{
		`\x\cba\addons\main\script_macros.hpp`: "M",
	})
	assert.Equal(t, "/", r.CurrentRoot())
	assert.True(t, r.IsFile("/x/cba/addons/main/script_macros.hpp"))
	assert.True(t, r.Exists("x/cba"))
	assert.False(t, r.IsFile("x/cba"))

	require.NoError(t, r.SetCurrentRoot(`\x\cba\addons`))
	assert.True(t, r.IsFile(`main\script_macros.hpp`))
	assert.Equal(t, "M", readAll(t, r, "main/script_macros.hpp"))

	_, err := r.Open("main/other.hpp")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Error(t, r.SetCurrentRoot("relative"))

	_, ok := r.Resolve("")
	assert.False(t, ok)
}

func TestCachingResolver(t *testing.T) {
	inner := NewMapResolver(map[string]string{"/a.hpp": "first"})
	r, err := NewCachingResolver(inner, 4)
	require.NoError(t, err)

	assert.False(t, r.Cached("a.hpp"))
	assert.Equal(t, "first", readAll(t, r, "a.hpp"))
	assert.True(t, r.Cached("a.hpp"))

	inner.Add("/a.hpp", "second")
	assert.Equal(t, "first", readAll(t, r, "a.hpp"), "served from cache")
	assert.Equal(t, "second", readAll(t, inner, "a.hpp"))

	_, err = r.Open("b.hpp")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = NewCachingResolver(inner, 0)
	assert.Error(t, err)
	_, err = NewCachingResolver(nil, 4)
	assert.Error(t, err)
}

func TestCachingResolverSharedAcrossRuns(t *testing.T) {
	inner := NewMapResolver(map[string]string{"/common.hpp": "#define X 1\n"})
	r, err := NewCachingResolver(inner, 8)
	require.NoError(t, err)

	p := NewPreprocessor()
	p.Resolver = r
	for i := 0; i < 2; i++ {
		got, _ := p.ProcessString("#include \"common.hpp\"\nX")
		assert.Equal(t, "\n\n1", got)
	}
	assert.True(t, r.Cached("common.hpp"))
}

func TestObjectResolverConfig(t *testing.T) {
	ctx := context.Background()
	base := ObjectStoreConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "configs",
		Prefix:    "/addons/main/",
	}

	for name, mutate := range map[string]func(*ObjectStoreConfig){
		"endpoint": func(c *ObjectStoreConfig) { c.Endpoint = " " },
		"keys":     func(c *ObjectStoreConfig) { c.SecretKey = "" },
		"bucket":   func(c *ObjectStoreConfig) { c.Bucket = "" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			_, err := NewObjectResolver(ctx, cfg)
			require.Error(t, err)
		})
	}

	r, err := NewObjectResolver(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, "configs", r.Bucket())
	assert.Equal(t, "/addons/main", r.CurrentRoot())

	key, ok := r.Resolve("script_macros.hpp")
	require.True(t, ok)
	assert.Equal(t, "addons/main/script_macros.hpp", key)

	key, ok = r.Resolve(`\x\cba\addons\main\script_macros.hpp`)
	require.True(t, ok)
	assert.Equal(t, "x/cba/addons/main/script_macros.hpp", key)

	_, ok = r.Resolve("")
	assert.False(t, ok)

	require.NoError(t, r.SetCurrentRoot("addons/other"))
	assert.Equal(t, "/addons/other", r.CurrentRoot())
	assert.Error(t, r.SetCurrentRoot("../outside"))
}
