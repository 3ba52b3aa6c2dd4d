// Copyright 2025 Zintix Labs
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

package perf_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zintix-labs/acdc/sdk/perf"
)

func TestRunPProfTo(t *testing.T) {
	dir := t.TempDir()
	work := func() {
		s := 0.0
		for i := range 100000 {
			s += float64(i)
		}
		_ = s
	}
	for _, mode := range []string{"cpu", "heap", "allocs"} {
		require.NoError(t, perf.RunPProfTo(dir, work, mode))
		_, err := os.Stat(filepath.Join(dir, mode+".pprof"))
		require.NoError(t, err, mode)
	}

	ran := false
	require.NoError(t, perf.RunPProfTo(dir, func() { ran = true }, ""))
	require.True(t, ran)
	require.Error(t, perf.RunPProfTo(dir, work, "block"))
}
