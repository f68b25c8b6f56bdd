// Package adapters defines the contract between the reconciliation engine
// and the system surfaces it manages. An adapter translates between the
// canonical model and exactly one external surface (networking, services,
// hardware): it reads current system state into a partial model and applies
// a partial model back, field by field, idempotently.
package adapters

import (
	"context"
	"fmt"

	"github.com/mpwrd/mpwrd-config/pkg/model"
)

// Adapter is one system surface. Implementations are stateless between
// calls; every Read produces a fresh immutable snapshot of the surface.
type Adapter interface {
	// Domain names the model section this adapter owns. One of
	// model.DomainNetworking, model.DomainServices, model.DomainHardware.
	Domain() string

	// Read inspects live system state and returns a model with only the
	// adapter's own section populated. scope supplies the key sets to
	// probe (service names, peripheral names); its values are never
	// consulted. Missing optional state never fails: the field's defined
	// default is returned instead. Read fails only on unexpected I/O or
	// permission errors, with a *ReadError.
	Read(ctx context.Context, scope *model.Config) (*model.Config, error)

	// Apply mutates the system for every field in its domain where
	// desired differs from current, and only those fields. Each field
	// mutation is minimal and independently idempotent: applying the
	// same desired state twice produces zero changes the second time.
	// Failures are collected per field; one field failing never prevents
	// the remaining fields from being attempted.
	Apply(ctx context.Context, desired, current *model.Config) ([]AppliedChange, []*ApplyError)
}

// AppliedChange records one field-level mutation that was performed.
type AppliedChange struct {
	// Domain is the adapter domain the field belongs to.
	Domain string `json:"domain"`

	// Field is the dotted model path of the mutated field.
	Field string `json:"field"`

	// Before is the rendered value the field had before the mutation.
	Before string `json:"before"`

	// After is the rendered value the field has now.
	After string `json:"after"`
}

// ReadError reports that an adapter could not inspect its surface. The
// engine treats the domain as unknown for the run and falls back to
// defaults; the run itself continues.
type ReadError struct {
	// Domain is the adapter domain that failed to read.
	Domain string `json:"domain"`

	// Err is the underlying cause.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s state: %v", e.Domain, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error { return e.Err }

// ApplyError reports that one field could not be applied. It is returned as
// data, never raised across the adapter boundary, so sibling fields and
// sibling adapters still run.
type ApplyError struct {
	// Field is the dotted model path that failed.
	Field string `json:"field"`

	// Err is the underlying cause.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *ApplyError) Unwrap() error { return e.Err }
