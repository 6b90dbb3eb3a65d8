// Package triage copies the local sources of failed uploads into a
// quarantine directory for manual review.
package triage

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rcliao/archive-sweep/internal/model"
)

// CodeTabClosed marks a failure whose browser tab went away before a
// verdict. There is nothing to quarantine for it.
const CodeTabClosed = "TAB_CLOSED"

//go:embed failures.schema.json
var failureSchema []byte

const schemaURL = "failures.schema.json"

var schema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(failureSchema))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
})

// LoadFailures reads and validates a failure report file.
func LoadFailures(path string) ([]model.Failure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failure report: %w", err)
	}
	return ParseFailures(data)
}

// ParseFailures validates data against the failure report schema and
// decodes it.
func ParseFailures(data []byte) ([]model.Failure, error) {
	sch, err := schema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid failure report: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid failure report: %w", err)
	}

	var failures []model.Failure
	if err := json.Unmarshal(data, &failures); err != nil {
		return nil, fmt.Errorf("decode failure report: %w", err)
	}
	return failures, nil
}
