package discovery

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/terms.schema.json
var termsSchema []byte

const termsSchemaURL = "https://path402.schemas.local/discovery/terms.schema.json"

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(termsSchemaURL, bytes.NewReader(termsSchema)); err != nil {
		return nil, fmt.Errorf("discovery schema load failed: %w", err)
	}
	s, err := c.Compile(termsSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("discovery schema compile failed: %w", err)
	}
	return s, nil
}
