package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStackNotFound    = errors.New("stack not found")
	ErrFunctionNotFound = errors.New("process function not found")
	ErrNoEnvironment    = errors.New("deployment has no cached environment")
)

// DeploymentNotFoundError is returned when a deployment name does not resolve
// to a persisted record. Valid carries the names that do exist so callers can
// display them.
type DeploymentNotFoundError struct {
	Name  string
	Valid []string
}

func (e *DeploymentNotFoundError) Error() string {
	if len(e.Valid) == 0 {
		return fmt.Sprintf("no such deployment: %q", e.Name)
	}
	return fmt.Sprintf("no such deployment: %q (valid: %s)", e.Name, strings.Join(e.Valid, ", "))
}

// UnsupportedVersionError is returned when a persisted record carries a
// config_version this build does not understand.
type UnsupportedVersionError struct {
	Name    string
	Version int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("deployment %q has unsupported config_version %d", e.Name, e.Version)
}

// MalformedEnvFileError names an environment file whose contents do not parse
// to exactly one value per line.
type MalformedEnvFileError struct {
	Path string
	Line int
}

func (e *MalformedEnvFileError) Error() string {
	return fmt.Sprintf("malformed env file: %s (line %d)", e.Path, e.Line)
}

// MissingVariableError reports placeholders left unresolved by strict
// templating.
type MissingVariableError struct {
	Names []string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("unresolved template variables: %s", strings.Join(e.Names, ", "))
}
