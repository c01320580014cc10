// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cor (Chain of Responsibility) provides the building blocks used to
// express the analysis pipeline as a sequence of commands sharing a context.
// This file defines the interfaces; BaseCommand, BaseChain and BaseContext are
// the default implementations.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys used to pipe data between commands of a
// BaseChain.
const (
	// CtxIn is the default key for the primary input of a command. The chain
	// fills it with the output of the previous command.
	CtxIn = "__IN__"
	// CtxOut is the default key a command writes its primary output to.
	CtxOut = "__OUT__"
)

// Context is the property bag handed from command to command during one
// execution. It carries data, the errors raised so far and the Go context
// used for cancellation, deadlines and trace propagation.
type Context interface {
	// SetContext sets the standard Go context.
	SetContext(context context.Context)

	// GetContext retrieves the standard Go context.
	GetContext() context.Context

	// Add stores a value under key and returns the Context for chaining.
	Add(key string, value interface{}) Context

	// AddError records an error, keyed by the name of the command that raised it.
	AddError(key string, err error)

	// GetErrors returns all errors recorded so far.
	GetErrors() map[string]error

	// Get retrieves a value by key, or nil.
	Get(key string) interface{}

	// Remove deletes a key.
	Remove(key string)

	// HasErrors reports whether any error has been recorded.
	HasErrors() bool
}

// Executable is anything with execution logic driven by a Context.
type Executable interface {
	Execute(context Context)
}

// Command is a single unit of work.
type Command interface {
	Executable

	// GetName returns the name used in logs, spans and metric names.
	GetName() string

	// GetInputParam returns the key of the command's primary input.
	GetInputParam() string

	// GetOutputParam returns the key of the command's primary output.
	GetOutputParam() string

	// IsExecutable checks the preconditions of the command against the Context.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a sequence of commands and is itself a Command, so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure keeps the chain running after a command records an error.
	ContinueOnFailure(bool) Chain

	// StopOnFirstOutput ends the chain as soon as a command writes a primary
	// output. Combined with ContinueOnFailure it turns the chain into an
	// ordered list of alternatives where the first one to produce wins.
	StopOnFirstOutput(bool) Chain

	// AddCommand appends a command to the chain.
	AddCommand(command Command) Chain
}
