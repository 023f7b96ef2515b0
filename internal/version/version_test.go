// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package version

import (
	"errors"
	"runtime/debug"
	"testing"

	"go.astrophena.name/rssmail/internal/testutil"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		bi      *debug.BuildInfo
		exe     string
		exeErr  error
		want    Info
		wantUA  string
		wantStr string
	}{
		"no build info": {
			exeErr:  errors.New("no executable"),
			want:    Info{Name: "rssmail", Version: "devel"},
			wantUA:  "rssmail/devel (+https://astrophena.name/bleep-bloop)",
			wantStr: "rssmail devel (, /)\n",
		},
		"devel with commit": {
			bi: &debug.BuildInfo{
				Main: debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abc123"},
					{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
				},
			},
			exe:     "/usr/local/bin/rssmail",
			want:    Info{Name: "rssmail", Version: "devel", Commit: "abc123", BuiltAt: "2026-01-02T03:04:05Z"},
			wantUA:  "rssmail/abc123 (+https://astrophena.name/bleep-bloop)",
			wantStr: "rssmail devel (, /)\ncommit abc123\nbuilt at 2026-01-02T03:04:05Z\n",
		},
		"tagged": {
			bi:      &debug.BuildInfo{Main: debug.Module{Version: "v1.2.0"}},
			exe:     "/opt/mailer",
			want:    Info{Name: "mailer", Version: "v1.2.0"},
			wantUA:  "mailer/v1.2.0 (+https://astrophena.name/bleep-bloop)",
			wantStr: "mailer v1.2.0 (, /)\n",
		},
		"test binary": {
			bi:      &debug.BuildInfo{},
			exe:     "/tmp/go-build/version.test",
			want:    Info{Name: "rssmail", Version: "devel"},
			wantUA:  "rssmail/devel (+https://astrophena.name/bleep-bloop)",
			wantStr: "rssmail devel (, /)\n",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := load(
				func() (*debug.BuildInfo, bool) { return tc.bi, tc.bi != nil },
				func() (string, error) { return tc.exe, tc.exeErr },
			)
			// Runtime details depend on the machine running tests.
			got.Go, got.OS, got.Arch = "", "", ""

			testutil.AssertEqual(t, got, tc.want)
			testutil.AssertEqual(t, userAgent(got), tc.wantUA)
			testutil.AssertEqual(t, got.String(), tc.wantStr)
		})
	}
}
