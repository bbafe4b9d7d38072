package diag_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.sr.ht/~gioverse/dynlist/diag"
)

func TestCallerReportsThisFile(t *testing.T) {
	site := caller()
	assert.True(t, strings.Contains(site, "diag_test.go"), "got %q", site)
	assert.Contains(t, site, ":")
}

func caller() string {
	return diag.Caller(2)
}
