// https://github.com/kirakira-dev/kikios
//
// Copyright (c) The KikiOS Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import "testing"

func TestLogfAndRecent(t *testing.T) {
	klog = Log{}

	Logf(Info, "usb", "device attached")
	Logf(Warn, "fat32", "fat mismatch")

	entries := Recent(2)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if entries[0].Msg != "device attached" || entries[1].Msg != "fat mismatch" {
		t.Fatalf("unexpected entry order: %+v", entries)
	}
}

func TestLogfEvictsOldestWhenFull(t *testing.T) {
	klog = Log{}

	for i := 0; i < ringSize+1; i++ {
		Logf(Info, "x", "entry")
	}

	entries := Recent(ringSize)
	if len(entries) != ringSize {
		t.Fatalf("expected ring to cap at %d, got %d", ringSize, len(entries))
	}
}

func TestLogfRespectsMinLevel(t *testing.T) {
	klog = Log{MinLevel: Warn}

	Logf(Debug, "x", "dropped")
	Logf(Error, "x", "kept")

	entries := Recent(10)
	if len(entries) != 1 || entries[0].Msg != "kept" {
		t.Fatalf("expected only the Error entry to survive, got %+v", entries)
	}
}
