// Package di provides a lightweight wrapper around uber's dig dependency
// injection framework. It assembles the CLI object graph: project, record
// store, and anything callers register on top.
package di

import (
	"go.uber.org/dig"
)

// ProjectDir is the directory the project lookup starts from.
type ProjectDir string

// Container defines a dependency injection container based on uber's dig.
// This interface allows for easy testing and mocking of the DI container.
type Container interface {
	// Invoke executes a function, injecting its dependencies from the container.
	Invoke(function any, opts ...dig.InvokeOption) error

	// Provide registers a constructor function in the container.
	Provide(constructor any, opts ...dig.ProvideOption) error
}

// MustGet returns an instance constructed via dependency injection or panics.
// Convenience for retrieving a dependency the caller knows is resolvable.
func MustGet[T any](container Container) (want T) {
	callback := func(got T) {
		want = got
	}
	if err := container.Invoke(callback); err != nil {
		panic(err)
	}
	return want
}

// New creates a dependency injection container rooted at the given project
// directory. The directory is registered as a ProjectDir dependency, and the
// core providers (project lookup, deployment store) are registered on top of
// any caller-supplied constructors.
func New(dir string, opts ...Option) (Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	container := dig.New()
	if err := container.Provide(func() ProjectDir { return ProjectDir(dir) }); err != nil {
		return nil, err
	}

	for _, provider := range core {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	for _, provider := range o.providers {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	return container, nil
}

var core = []any{
	ProvideProject,
	ProvideStore,
}
