// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed intent_examples.yaml
var intentExamplesYAML []byte

// Example is one labeled utterance in the classification corpus.
type Example struct {
	Label Label  `yaml:"label"`
	Text  string `yaml:"text"`
}

type exampleFile struct {
	Examples []Example `yaml:"examples"`
}

var (
	examplesOnce   sync.Once
	loadedExamples []Example
	examplesErr    error
)

// LoadExamples parses the embedded example corpus. Parsed once; subsequent
// calls return the cached slice.
func LoadExamples() ([]Example, error) {
	examplesOnce.Do(func() {
		var f exampleFile
		if err := yaml.Unmarshal(intentExamplesYAML, &f); err != nil {
			examplesErr = fmt.Errorf("parse intent examples: %w", err)
			return
		}
		for i, ex := range f.Examples {
			if !ex.Label.IsKnown() {
				examplesErr = fmt.Errorf("intent examples[%d]: unknown label %q", i, ex.Label)
				return
			}
			if ex.Text == "" {
				examplesErr = fmt.Errorf("intent examples[%d]: empty text", i)
				return
			}
		}
		loadedExamples = f.Examples
	})
	return loadedExamples, examplesErr
}
