//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoHXL.
//
// GoHXL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoHXL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoHXL. If not, see https://www.gnu.org/licenses/.

package s3util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseURL tests splitting S3 URLs
func TestParseURL(t *testing.T) {
	bucket, key, err := ParseURL("s3://data/hxl/3w.csv")
	require.NoError(t, err)
	assert.Equal(t, "data", bucket)
	assert.Equal(t, "hxl/3w.csv", key)

	for _, bad := range []string{"data/3w.csv", "s3://data", "s3:///3w.csv", "s3://data/"} {
		_, _, err := ParseURL(bad)
		assert.Error(t, err, bad)
	}
}
