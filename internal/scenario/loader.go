package scenario

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a suite from a YAML file. Fields left out fall back to the
// CORD-19 suite's setup, viewport and canvas.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML suite
func Parse(data []byte) (*Suite, error) {
	defaults := Cord19("")
	suite := &Suite{
		Name:     defaults.Name,
		Viewport: defaults.Viewport,
		Canvas:   defaults.Canvas,
		Setup:    defaults.Setup,
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(suite); err != nil {
		return nil, fmt.Errorf("decoding suite: %w", err)
	}

	for i := range suite.Scenarios {
		for j := range suite.Scenarios[i].Steps {
			st := &suite.Scenarios[i].Steps[j]
			if st.Selector == "" && (st.Action == ActionHover || st.Action == ActionExpectScreenshot) {
				st.Selector = suite.Canvas
			}
		}
	}

	if err := suite.Validate(); err != nil {
		return nil, err
	}
	return suite, nil
}
