package tberr_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tagbox/core/internal/tberr"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want tberr.Kind
	}{
		{&tberr.DuplicateHashError{Hash: "abc"}, tberr.KindDuplicateHash},
		{&tberr.InvalidQueryError{Query: "q", Position: 3, Reason: "r"}, tberr.KindInvalidQuery},
		{&tberr.ConfigDriftError{Key: "k"}, tberr.KindConfigDrift},
		{&tberr.IOFailureError{Path: "/x", Err: fmt.Errorf("boom")}, tberr.KindIOFailure},
		{tberr.ErrFileNotFound, tberr.KindFileNotFound},
		{tberr.ErrAliasCycle, tberr.KindAliasCycle},
		{tberr.ErrCancelled, tberr.KindCancelled},
		{fmt.Errorf("wrapped: %w", tberr.ErrConfigError), tberr.KindConfigError},
		{fmt.Errorf("opaque failure"), tberr.KindDatabaseError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tberr.CodeOf(tc.err), "%v", tc.err)
	}
}

func TestRichErrorsUnwrapAndMessage(t *testing.T) {
	inner := fmt.Errorf("disk on fire")
	err := &tberr.IOFailureError{Path: "/tmp/x", Err: inner}
	assert.ErrorContains(t, err, "/tmp/x")
	assert.ErrorContains(t, err, "disk on fire")
	assert.ErrorIs(t, err, inner)

	iq := &tberr.InvalidQueryError{Query: "tag:", Position: 4, Reason: "empty value"}
	assert.ErrorContains(t, iq, "4")
	assert.ErrorContains(t, iq, "empty value")
}
