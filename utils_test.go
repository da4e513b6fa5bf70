// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMsDosTimeRoundTrip(t *testing.T) {
	t.Parallel()

	in := time.Date(2023, time.March, 14, 15, 9, 26, 0, time.UTC)
	d, tm := timeToMsDos(in)
	out := msDosToTime(d, tm)

	assert.Equal(t, in.Year(), out.Year())
	assert.Equal(t, in.Month(), out.Month())
	assert.Equal(t, in.Day(), out.Day())
	assert.Equal(t, in.Hour(), out.Hour())
	assert.Equal(t, in.Minute(), out.Minute())
	// Two second resolution rounds seconds down.
	assert.Equal(t, 26, out.Second())

	odd := time.Date(2023, time.March, 14, 15, 9, 27, 0, time.UTC)
	d, tm = timeToMsDos(odd)
	assert.Equal(t, 26, msDosToTime(d, tm).Second())
}

func TestMsDosTimeClampsRange(t *testing.T) {
	t.Parallel()

	d, tm := timeToMsDos(time.Date(1969, time.July, 20, 20, 17, 0, 0, time.UTC))
	assert.Equal(t, 1980, msDosToTime(d, tm).Year())

	d, tm = timeToMsDos(time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2099, msDosToTime(d, tm).Year())
}

func TestMsDosToTimeSanitizesFields(t *testing.T) {
	t.Parallel()

	// Zeroed date fields decode to the first day of the first month.
	out := msDosToTime(0, 0)
	assert.Equal(t, 1980, out.Year())
	assert.Equal(t, time.January, out.Month())
	assert.Equal(t, 1, out.Day())
}
