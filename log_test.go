// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq_test

import (
	"bytes"
	"strings"
	"testing"

	"code.hybscloud.com/memq"
	"github.com/rs/zerolog"
)

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	memq.SetLogger(zerolog.New(&buf))
	defer memq.SetLogger(zerolog.Nop())

	n := newTestNode(t)
	if _, err := memq.OpenEvent(n, "logged", memq.EventConfig{}); err != nil {
		t.Fatalf("OpenEvent: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "service created") {
		t.Fatalf("missing service creation log, got %q", out)
	}
	if !strings.Contains(out, `"service":"logged"`) {
		t.Fatalf("missing service field, got %q", out)
	}
}
