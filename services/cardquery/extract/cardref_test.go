// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import "testing"

func TestCardReference(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"last four", "what do I owe on the card ending in 4821", "4821", true},
		{"last four short", "card ending 4821 please", "4821", true},
		{"named card", "whats the balance on my chase freedom card", "chase freedom", true},
		{"named with the", "pay off the sapphire card", "sapphire", true},
		{"quoted nickname", `how is "old faithful" doing`, "old faithful", true},
		{"ranking not a ref", "show my highest balance card", "", false},
		{"attribute not a ref", "my credit limit card situation", "", false},
		{"no reference", "how much do I owe overall", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CardReference(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Errorf("CardReference(%q) = %q/%v, want %q/%v", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}
