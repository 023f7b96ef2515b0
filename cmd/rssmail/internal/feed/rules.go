// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Rules decide which items are sent, using keep and block functions defined
// in a Starlark file:
//
//	def keep(item):
//	    return "go" in item.categories
//
//	def block(item):
//	    return item.title.startswith("Sponsored")
//
// An item is sent if block returns False and keep returns True. Either
// function may be omitted. item has the fields title, url, identity, summary
// and categories.
type Rules struct {
	keep  *starlark.Function
	block *starlark.Function
	slog  *slog.Logger
}

// LoadRules reads rules from the Starlark file at path.
func LoadRules(path string, logger *slog.Logger) (*Rules, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRules(path, src, logger)
}

// ParseRules parses rules from Starlark source. filename is used in error
// messages.
func ParseRules(filename string, src []byte, logger *slog.Logger) (*Rules, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rules{slog: logger}

	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{},
		r.thread(),
		filename,
		src,
		nil,
	)
	if err != nil {
		return nil, err
	}

	for name, dst := range map[string]**starlark.Function{"keep": &r.keep, "block": &r.block} {
		v, ok := globals[name]
		if !ok {
			continue
		}
		fn, ok := v.(*starlark.Function)
		if !ok {
			return nil, fmt.Errorf("%s: %s must be a function, got %s", filename, name, v.Type())
		}
		if fn.NumParams() != 1 {
			return nil, fmt.Errorf("%s: %s must take exactly one argument", filename, name)
		}
		*dst = fn
	}
	if r.keep == nil && r.block == nil {
		return nil, fmt.Errorf("%s: neither keep nor block is defined", filename)
	}
	return r, nil
}

func (r *Rules) thread() *starlark.Thread {
	return &starlark.Thread{
		Name:  "rules",
		Print: func(_ *starlark.Thread, msg string) { r.slog.Info(msg) },
	}
}

// Keep reports whether item passes the rules. On error the item should be
// kept.
func (r *Rules) Keep(item Item) (bool, error) {
	v := toStarlark(item)
	if r.block != nil {
		blocked, err := r.call(r.block, v)
		if err != nil {
			return true, err
		}
		if blocked {
			return false, nil
		}
	}
	if r.keep != nil {
		return r.call(r.keep, v)
	}
	return true, nil
}

var errNotBool = errors.New("rule returned non-boolean value")

func (r *Rules) call(fn *starlark.Function, item starlark.Value) (bool, error) {
	val, err := starlark.Call(r.thread(), fn, starlark.Tuple{item}, nil)
	if err != nil {
		return true, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	b, ok := val.(starlark.Bool)
	if !ok {
		return true, fmt.Errorf("%s: %w: %s", fn.Name(), errNotBool, val.Type())
	}
	return bool(b), nil
}

func toStarlark(item Item) starlark.Value {
	categories := make([]starlark.Value, 0, len(item.Categories))
	for _, c := range item.Categories {
		categories = append(categories, starlark.String(c))
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"title":      starlark.String(item.Title),
		"url":        starlark.String(item.Link),
		"identity":   starlark.String(item.Identity),
		"summary":    starlark.String(item.Summary),
		"categories": starlark.NewList(categories),
	})
}
