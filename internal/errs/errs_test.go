package errs_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/praveen686/omlaxmiquant/internal/errs"
)

func TestErrorRendersEnvelopeFields(t *testing.T) {
	err := errs.New("gateway/submit", errs.CodeRejected,
		errs.WithMessage("order refused"),
		errs.WithHTTP(400),
		errs.WithRawCode("-2010"),
		errs.WithRawMessage("Account has insufficient balance"),
	)
	require.Equal(t, "gateway/submit: rejected: order refused (http 400) [-2010 Account has insufficient balance]", err.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := errs.New("transport/ws", errs.CodeTransport, errs.WithCause(cause))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Equal(t, cause, errors.Unwrap(err))
}

func TestCodeOfWrappedEnvelope(t *testing.T) {
	inner := errs.New("book/apply", errs.CodeSequenceGap)
	wrapped := errs.New("marketdata/consume", errs.CodeTransport, errs.WithCause(inner))
	require.Equal(t, errs.CodeTransport, errs.CodeOf(wrapped))
	require.Equal(t, errs.CodeSequenceGap, errs.CodeOf(inner))
	require.True(t, errs.HasCode(inner, errs.CodeSequenceGap))
}

func TestCodeOfForeignError(t *testing.T) {
	require.Equal(t, errs.Code(""), errs.CodeOf(errors.New("plain")))
	require.False(t, errs.HasCode(nil, errs.CodeTimeout))
}
