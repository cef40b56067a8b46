/*
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package arma_cfg

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/fwessels/arma-cfg/internal/config"
	"github.com/fwessels/arma-cfg/internal/diag"
	"github.com/fwessels/arma-cfg/internal/preprocessor"
)

type (
	Class        = config.Class
	Entry        = config.Entry
	Field        = config.Field
	Element      = config.Element
	Array        = config.Array
	Value        = config.Value
	ValueType    = config.ValueType
	DecodeError  = config.DecodeError
	Options      = preprocessor.Options
	Result       = preprocessor.Result
	PathResolver = preprocessor.PathResolver
	Diagnostic   = diag.Diagnostic
	Listener     = diag.Listener
)

// Preprocess expands the directives and macros of src. Includes are
// resolved with resolver, which may be nil when src includes nothing.
func Preprocess(src string, opts Options, resolver PathResolver, listeners ...Listener) (string, *Result) {
	p := preprocessor.NewPreprocessor()
	p.Options = opts
	p.Resolver = resolver
	for _, l := range listeners {
		p.AddListener(l)
	}
	return p.ProcessString(src)
}

func ParseRapified(r io.Reader) (*Class, error) {
	return config.DecodeRapified(r)
}

// ParseText parses text config source that has already been preprocessed.
func ParseText(r io.Reader) (*Class, error) {
	return config.DecodeText(r)
}

// ParseSource preprocesses src and parses the result as a text config.
func ParseSource(src string, opts Options, resolver PathResolver, listeners ...Listener) (*Class, *Result, error) {
	out, res := Preprocess(src, opts, resolver, listeners...)
	if res.Aborted {
		errs := res.Errors()
		return nil, res, fmt.Errorf("preprocessing aborted: %s", errs[len(errs)-1].Message)
	}
	c, err := config.DecodeText(strings.NewReader(out))
	return c, res, err
}

// Load reads a rapified or a text config, telling them apart by the magic
// at the start of the rapified format.
func Load(r io.Reader) (*Class, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(4)
	if IsRapified(head) {
		return config.DecodeRapified(br)
	}
	return config.DecodeText(br)
}

// IsRapified reports whether head starts with the rapified magic.
func IsRapified(head []byte) bool {
	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], uint32(config.Magic))
	return bytes.HasPrefix(head, magic[:])
}

// Equal reports whether two trees hold the same entries in the same order
// with the same values and types.
func Equal(a, b *Class) bool {
	return config.Equal(a, b)
}

// Diff describes how b differs from a, or returns "" when they are equal.
func Diff(a, b *Class) string {
	return config.Diff(a, b)
}
