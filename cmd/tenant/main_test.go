package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"okrtrack/internal/infrastructure/storage/postgres/rls"
)

func TestPrintResetReport_ListsFailures(t *testing.T) {
	var buf bytes.Buffer
	printResetReport(&buf, rls.ResetReport{
		Tables:  []string{"plans", "organizations"},
		Skipped: []string{"widgets"},
		Failures: map[string]error{
			"users":     errors.New("lock timeout"),
			"check_ins": errors.New("canceling statement"),
		},
	})

	assert.Equal(t, ""+
		"  ✓ plans\n"+
		"  ✓ organizations\n"+
		"  ✗ check_ins: canceling statement\n"+
		"  ✗ users: lock timeout\n"+
		"  - widgets (missing)\n", buf.String())
}
