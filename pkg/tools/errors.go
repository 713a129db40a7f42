// Copyright 2025 Strand AI
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tools

import "fmt"

// ToolRegistryError is a structured error from registry operations.
type ToolRegistryError struct {
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *ToolRegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Action, e.Message)
}

func (e *ToolRegistryError) Unwrap() error {
	return e.Err
}

func NewToolRegistryError(action, message string, err error) *ToolRegistryError {
	return &ToolRegistryError{
		Component: "tools",
		Action:    action,
		Message:   message,
		Err:       err,
	}
}

// ValidationError is a tool-argument schema violation. Not retried; surfaced
// to the model as a failed tool result.
type ValidationError struct {
	Tool    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool '%s': %s", e.Tool, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
