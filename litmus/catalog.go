// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package litmus

import (
	"embed"
	"path"
	"sort"

	"github.com/cockroachdb/errors"
)

//go:embed catalog/*.yaml
var catalogFS embed.FS

// Catalog returns the built-in litmus tests, sorted by name.
func Catalog() ([]*Test, error) {
	files, err := catalogFS.ReadDir("catalog")
	if err != nil {
		return nil, err
	}
	var tests []*Test
	for _, f := range files {
		data, err := catalogFS.ReadFile(path.Join("catalog", f.Name()))
		if err != nil {
			return nil, err
		}
		t, err := Parse(data)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog/%s", f.Name())
		}
		tests = append(tests, t)
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].Name < tests[j].Name })
	return tests, nil
}

// Lookup returns the built-in test called name.
func Lookup(name string) (*Test, error) {
	tests, err := Catalog()
	if err != nil {
		return nil, err
	}
	for _, t := range tests {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, errors.Newf("no litmus test %q", name)
}
