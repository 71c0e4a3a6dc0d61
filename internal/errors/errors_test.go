package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "fake timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

func TestIsProtocolErrorClassification(t *testing.T) {
	root := stdErrors.New("root")
	wrapped := fmt.Errorf("adding context: %w", root)
	te := NewTransportError("send.frame", wrapped)
	require.True(t, IsProtocolError(te))
	require.True(t, stdErrors.Is(te, root))

	var tr *TransportError
	require.True(t, stdErrors.As(te, &tr))
	require.Equal(t, "send.frame", tr.Op)

	require.True(t, IsProtocolError(NewUnknownEntityError("lookup", nil)))
	require.True(t, IsProtocolError(NewBadArgumentsError("addAudioMappings", nil)))
	require.True(t, IsProtocolError(NewNotSupportedError("sendAcmpMessage", nil)))
	require.True(t, IsProtocolError(NewAbortedError("protocolInterface.destroy")))
}

func TestIsTimeout(t *testing.T) {
	root := fakeTimeoutErr{}
	to := NewTimeoutError("aecp.command", 250*time.Millisecond, root)
	require.True(t, IsTimeout(to))
	require.False(t, IsProtocolError(to))
	require.True(t, IsTimeout(context.DeadlineExceeded))
	var ne error = root
	require.True(t, IsTimeout(ne))
}

func TestUnwrapChains(t *testing.T) {
	base := stdErrors.New("link down")
	l1 := fmt.Errorf("send: %w", base)
	l2 := NewTransportError("aecp.send", l1)
	require.True(t, stdErrors.Is(l2, base))
	var pm protocolMarker
	require.True(t, stdErrors.As(l2, &pm))
}

func TestNilSafety(t *testing.T) {
	require.False(t, IsProtocolError(nil))
	require.False(t, IsTimeout(nil))
}

func TestNilErrBranchesAndStrings(t *testing.T) {
	te := NewTransportError("op1", nil)
	require.True(t, IsProtocolError(te))
	require.NotEmpty(t, te.Error())

	ue := NewUnknownEntityError("op2", nil)
	require.NotEmpty(t, ue.Error())

	ba := NewBadArgumentsError("op3", nil)
	require.NotEmpty(t, ba.Error())

	ns := NewNotSupportedError("op4", nil)
	require.NotEmpty(t, ns.Error())

	ab := NewAbortedError("op5")
	require.NotEmpty(t, ab.Error())

	to := NewTimeoutError("op6", 100*time.Millisecond, nil)
	require.True(t, IsTimeout(to))
	require.False(t, IsProtocolError(to))
	require.NotEmpty(t, to.Error())
}

func TestNegativePredicates(t *testing.T) {
	require.False(t, IsProtocolError(stdErrors.New("plain")))
	require.False(t, IsTimeout(stdErrors.New("plain")))
}

func TestAemStatus(t *testing.T) {
	require.True(t, AemStatusSuccess.IsSuccess())
	require.True(t, AemStatusInProgress.IsInProgress())
	require.False(t, AemStatusNoSuchDescriptor.IsSuccess())
	require.Equal(t, "NoSuchDescriptor", AemStatusNoSuchDescriptor.String())

	err := NewAemStatusError("readDescriptor", AemStatusNoSuchDescriptor)
	require.ErrorContains(t, err, "NoSuchDescriptor")
}

func TestCodecError(t *testing.T) {
	err := NewCodecError("adpdu.parse", DeserializationIncompleteFrame, nil)
	require.True(t, IsProtocolError(err))
	require.ErrorContains(t, err, "IncompleteFrame")
}
