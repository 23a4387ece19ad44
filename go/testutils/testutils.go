// Package testutils holds small helpers shared by tests.
package testutils

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// AnyContext can be used to match any Context passed to a mockery mock, e.g.
//
//	sc.On("ResolveCommit", testutils.AnyContext, "chromium", "abc").Return(...)
var AnyContext = mock.MatchedBy(func(context.Context) bool {
	return true
})
