package discovery

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlDocument is the top level of a YAML definitions file:
//
//	assets:
//	  - key: warehouse.orders
//	    type: source
//	    owners: [data-eng]
type yamlDocument struct {
	Assets []yaml.Node `yaml:"assets"`
}

func loadYAML(path string, data []byte) ([]Definition, []error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, []error{&LoadError{File: path, Field: "yaml", Message: err.Error()}}
	}

	var (
		defs []Definition
		errs []error
	)
	for i := range doc.Assets {
		node := &doc.Assets[i]
		var d Definition
		if err := node.Decode(&d); err != nil {
			errs = append(errs, &LoadError{
				File:    path,
				Line:    node.Line,
				Column:  node.Column,
				Field:   fmt.Sprintf("assets[%d]", i),
				Message: err.Error(),
			})
			continue
		}
		d.Source = Location{File: path, Line: node.Line, Column: node.Column}
		defs = append(defs, d)
	}
	return defs, errs
}
