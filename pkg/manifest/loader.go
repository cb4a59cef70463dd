// Package manifest loads ordered resource stacks from YAML manifest files
// and turns them into engine descriptors.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openrollout/openrollout/pkg/engine"
)

// DefaultFileOrder is the canonical stack sequence. Files are applied in
// this order; within a file, documents keep their declaration order.
var DefaultFileOrder = []string{
	"resourcegroup.yaml",
	"identity.yaml",
	"roleassignment.yaml",
	"cluster.yaml",
	"federated.yaml",
	"extension.yaml",
	"fluxconfiguration.yaml",
}

// DefaultMonitorableKinds lists the kinds whose readiness must be confirmed
// after apply. Everything else is complete on acceptance alone.
var DefaultMonitorableKinds = []string{"ManagedCluster", "Extension"}

// Loader reads a stack directory into an ordered descriptor list.
type Loader struct {
	fileOrder   []string
	monitorable map[string]bool
	validate    *validator.Validate
	logger      zerolog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithFileOrder overrides the canonical file sequence.
func WithFileOrder(order []string) LoaderOption {
	return func(l *Loader) {
		if len(order) > 0 {
			l.fileOrder = order
		}
	}
}

// WithMonitorableKinds overrides which kinds require readiness polling.
func WithMonitorableKinds(kinds []string) LoaderOption {
	return func(l *Loader) {
		l.monitorable = make(map[string]bool, len(kinds))
		for _, k := range kinds {
			l.monitorable[strings.ToLower(k)] = true
		}
	}
}

// WithLoaderLogger sets the loader logger.
func WithLoaderLogger(logger zerolog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a stack loader with the canonical defaults.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		fileOrder: DefaultFileOrder,
		validate:  validator.New(),
		logger:    zerolog.Nop(),
	}
	WithMonitorableKinds(DefaultMonitorableKinds)(l)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// rawDocument is the slice of a manifest document the loader reads.
type rawDocument struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Metadata   struct {
		Name      string `yaml:"name"`
		Namespace string `yaml:"namespace"`
	} `yaml:"metadata"`
}

// Load reads the stack directory and returns descriptors in sequence order.
// Files absent from the directory are skipped with a warning; a directory
// that yields no descriptors at all is an error.
func (l *Loader) Load(dir string) ([]engine.Descriptor, error) {
	var descriptors []engine.Descriptor

	for _, file := range l.fileOrder {
		path := filepath.Join(dir, file)
		docs, err := l.loadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				l.logger.Warn().Str("file", file).Msg("Stack file missing, skipping")
				continue
			}
			return nil, err
		}
		descriptors = append(descriptors, docs...)
	}

	if len(descriptors) == 0 {
		return nil, engine.NewPermanentError(fmt.Sprintf("no resources found in %s", dir), nil).
			WithCode(engine.ErrCodeValidation)
	}

	for i := range descriptors {
		descriptors[i].SequencePosition = i
	}
	return descriptors, nil
}

// loadFile parses every document in a multi-document YAML file.
func (l *Loader) loadFile(path string) ([]engine.Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []engine.Descriptor
	dec := yaml.NewDecoder(f)
	for {
		var doc rawDocument
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, engine.NewPermanentError(fmt.Sprintf("malformed manifest %s", path), err).
				WithCode(engine.ErrCodeValidation)
		}
		if doc.Kind == "" && doc.Metadata.Name == "" {
			// Empty document separator.
			continue
		}

		d := engine.Descriptor{
			Kind:        doc.Kind,
			Name:        doc.Metadata.Name,
			Namespace:   doc.Metadata.Namespace,
			Monitorable: l.monitorable[strings.ToLower(doc.Kind)],
			SourceFile:  path,
		}
		if err := l.validate.Struct(d); err != nil {
			return nil, engine.NewPermanentError(fmt.Sprintf("invalid descriptor in %s", path), err).
				WithCode(engine.ErrCodeValidation).
				WithResource(d.ID())
		}
		out = append(out, d)
	}
	return out, nil
}
