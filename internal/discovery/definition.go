// Package discovery loads asset definitions from a directory of YAML and
// CUE files and registers them with the asset registry.
package discovery

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/assetgov/internal/model"
)

// Location points at the place an asset definition was read from.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.Line > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return l.File
}

// Definition is one asset as declared in a definitions file.
type Definition struct {
	Key          string            `yaml:"key" json:"key" validate:"required,assetkey"`
	Name         string            `yaml:"name" json:"name"`
	Type         string            `yaml:"type" json:"type" validate:"omitempty,oneof=source transform sink unknown"`
	Group        string            `yaml:"group" json:"group"`
	Pipeline     string            `yaml:"pipeline" json:"pipeline"`
	Owners       []string          `yaml:"owners" json:"owners" validate:"dive,required"`
	Tags         map[string]string `yaml:"tags" json:"tags"`
	Metadata     map[string]any    `yaml:"metadata" json:"metadata"`
	Dependencies []string          `yaml:"dependencies" json:"dependencies" validate:"dive,assetkey"`
	Config       map[string]any    `yaml:"config" json:"config"`

	Source Location `yaml:"-" json:"-" validate:"-"`
}

// ToSpec converts the definition into a registration request.
func (d Definition) ToSpec() model.AssetSpec {
	return model.AssetSpec{
		AssetKey:     d.Key,
		Name:         d.Name,
		Type:         model.ParseAssetType(d.Type),
		Group:        d.Group,
		Pipeline:     d.Pipeline,
		Owners:       d.Owners,
		Tags:         d.Tags,
		Metadata:     d.Metadata,
		Dependencies: d.Dependencies,
		Config:       d.Config,
	}
}

// Validate checks required fields and key syntax. The returned error is a
// *LoadError positioned at the definition's source.
func (d Definition) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return d.errorf(fe.Field(), "%s", describe(fe))
	}
	return d.errorf("definition", "%v", err)
}

func (d Definition) errorf(field, format string, args ...any) *LoadError {
	return &LoadError{
		File:    d.Source.File,
		Line:    d.Source.Line,
		Column:  d.Source.Column,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Report fields by their file names rather than Go names.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("assetkey", func(fl validator.FieldLevel) bool {
		_, err := model.NormalizeAssetKey(fl.Field().String())
		return err == nil
	})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("%q is not one of: %s", fe.Value(), fe.Param())
	case "assetkey":
		return fmt.Sprintf("%q is not a valid asset key", fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// LoadError describes a definition that could not be read or validated.
type LoadError struct {
	File    string
	Line    int
	Column  int
	Field   string
	Message string
}

func (e *LoadError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.File, e.Line, e.Column, e.Field, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
}
