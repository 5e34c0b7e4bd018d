package discovery

import (
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// loadCUE reads definitions declared as
//
//	asset: "warehouse.orders": {
//		type:   "source"
//		owners: ["data-eng"]
//	}
//
// The field label is the asset key unless the struct sets key explicitly.
func loadCUE(path string, data []byte) ([]Definition, []error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err, path)}
	}

	assets := v.LookupPath(cue.ParsePath("asset"))
	if !assets.Exists() {
		return nil, nil
	}
	iter, err := assets.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err, path)}
	}

	var (
		defs []Definition
		errs []error
	)
	for iter.Next() {
		d, err := decodeCUEAsset(path, iter.Label(), iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, d)
	}
	return defs, errs
}

func decodeCUEAsset(path, label string, v cue.Value) (Definition, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Definition{}, formatCUEError(err, path)
	}

	var d Definition
	if err := v.Decode(&d); err != nil {
		return Definition{}, formatCUEError(err, path)
	}
	if d.Key == "" {
		if s, err := strconv.Unquote(label); err == nil {
			label = s
		}
		d.Key = label
	}

	pos := v.Pos()
	d.Source = Location{File: path}
	if pos.IsValid() {
		d.Source = Location{File: pos.Filename(), Line: pos.Line(), Column: pos.Column()}
	}
	return d, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error, path string) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{File: path, Field: "cue", Message: err.Error()}
	}

	first := errs[0]
	loadErr := &LoadError{File: path, Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 && positions[0].IsValid() {
		pos := positions[0]
		loadErr.File = pos.Filename()
		loadErr.Line = pos.Line()
		loadErr.Column = pos.Column()
	}
	return loadErr
}
