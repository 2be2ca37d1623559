// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package pathmon

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"testing"
)

// fakeLinks builds a resolver over a static link table. Relative
// targets resolve against the link's parent lexically, the way the
// platform resolver canonicalizes them before returning.
type fakeLinks struct {
	// links maps a link path to its target.
	links map[string]string

	// broken maps a path to the error its resolution raises.
	broken map[string]error
}

func (f fakeLinks) resolver() resolver {
	return resolver{resolveLink: func(path string) (string, bool, error) {
		if err, ok := f.broken[path]; ok {
			return "", false, err
		}
		target, ok := f.links[path]
		if !ok {
			return "", false, nil
		}
		if _, _, absolute := splitVolume(target); !absolute {
			target = normalizeLexical(joinOne(parentPath(path), target))
		}
		return target, true, nil
	}}
}

func TestResolveAllLinksNoLinks(t *testing.T) {
	r := fakeLinks{}.resolver()

	paths, err := r.resolveAllLinks(`C:\Program Files\App\app.exe`)
	if err != nil {
		t.Fatalf("resolveAllLinks: %v", err)
	}
	if want := []string{`C:\Program Files\App\app.exe`}; !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestResolveAllLinksJunction(t *testing.T) {
	r := fakeLinks{links: map[string]string{
		`C:\A\B`: `D:\Target`,
	}}.resolver()

	paths, err := r.resolveAllLinks(`C:\A\B\file.txt`)
	if err != nil {
		t.Fatalf("resolveAllLinks: %v", err)
	}
	want := []string{`C:\A\B\file.txt`, `D:\Target\file.txt`}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestResolveAllLinksRelativeSymlink(t *testing.T) {
	r := fakeLinks{links: map[string]string{
		`C:\Apps\Current`: `..\Versions\v2`,
	}}.resolver()

	paths, err := r.resolveAllLinks(`C:\Apps\Current\bin\app.exe`)
	if err != nil {
		t.Fatalf("resolveAllLinks: %v", err)
	}
	want := []string{`C:\Apps\Current\bin\app.exe`, `C:\Versions\v2\bin\app.exe`}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	for _, path := range paths {
		if strings.Contains(path, `..`) {
			t.Errorf("resolved path %q retains a .. segment", path)
		}
	}
}

func TestResolveAllLinksChained(t *testing.T) {
	// The junction target's own ancestry contains a second link.
	r := fakeLinks{links: map[string]string{
		`C:\A\B`:     `D:\Stage`,
		`D:\Stage`:   `E:\Final`,
		`E:\Final\f`: `E:\Elsewhere`,
	}}.resolver()

	paths, err := r.resolveAllLinks(`C:\A\B\f`)
	if err != nil {
		t.Fatalf("resolveAllLinks: %v", err)
	}
	want := []string{`C:\A\B\f`, `D:\Stage\f`, `E:\Final\f`, `E:\Elsewhere`}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestResolveAllLinksFirstRedirectPerLevelWins(t *testing.T) {
	// Once a level redirects, the walk re-roots: the link deeper in
	// the ORIGINAL chain is never consulted.
	r := fakeLinks{links: map[string]string{
		`C:\A`:   `D:\X`,
		`C:\A\B`: `E:\Never`,
	}}.resolver()

	paths, err := r.resolveAllLinks(`C:\A\B\f`)
	if err != nil {
		t.Fatalf("resolveAllLinks: %v", err)
	}
	want := []string{`C:\A\B\f`, `D:\X\B\f`}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestResolveAllLinksMissingAncestors(t *testing.T) {
	r := fakeLinks{broken: map[string]error{
		`C:\Gone`:          fs.ErrNotExist,
		`C:\Gone\sub`:      fs.ErrNotExist,
		`C:\Gone\sub\file`: fs.ErrNotExist,
	}}.resolver()

	paths, err := r.resolveAllLinks(`C:\Gone\sub\file`)
	if err != nil {
		t.Fatalf("resolveAllLinks: %v", err)
	}
	if want := []string{`C:\Gone\sub\file`}; !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestResolveAllLinksHardErrorPropagates(t *testing.T) {
	corrupt := errors.New("reparse data truncated")
	r := fakeLinks{broken: map[string]error{
		`C:\Bad`: corrupt,
	}}.resolver()

	if _, err := r.resolveAllLinks(`C:\Bad\file`); !errors.Is(err, corrupt) {
		t.Errorf("resolveAllLinks error = %v, want wrapped %v", err, corrupt)
	}
}

func TestResolveAllLinksRelativePath(t *testing.T) {
	r := fakeLinks{}.resolver()
	if _, err := r.resolveAllLinks(`relative\path`); !errors.Is(err, ErrNotAbsolute) {
		t.Errorf("resolveAllLinks error = %v, want ErrNotAbsolute", err)
	}
}

func TestResolveAllLinksMultipleBestEffort(t *testing.T) {
	r := fakeLinks{
		links: map[string]string{
			`C:\A\B`: `D:\Target`,
		},
		broken: map[string]error{
			`C:\Denied`: fmt.Errorf("opening reparse point: %w", errors.New("access denied")),
		},
	}.resolver()

	resolved := r.resolveAllLinksMultiple([]string{
		`C:\A\B\file.txt`,
		`C:\Denied\file.txt`,
		`C:\Plain\other.txt`,
	})

	want := map[string]struct{}{
		`C:\A\B\file.txt`:    {},
		`D:\Target\file.txt`: {},
		`C:\Plain\other.txt`: {},
	}
	if !reflect.DeepEqual(resolved, want) {
		t.Errorf("resolved = %v, want %v", resolved, want)
	}
}
