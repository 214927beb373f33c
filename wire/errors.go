package wire

import (
	"fmt"

	"tockhost/hosterrors"
)

// newSizeError reports a buffer whose length does not match a frame's
// exact encoded size. This is a decode failure (hosterrors.Custom),
// distinct from the PartialMessage kind the transport uses for
// datagrams of the wrong length; transport.Recv checks the datagram
// length itself before decoding, so a wrong-size frame received there is
// reported as PartialMessage.
func newSizeError(frame string, expected, actual int) error {
	detail := fmt.Sprintf("failed to deserialize %s (expected %d bytes, got %d)", frame, expected, actual)
	return hosterrors.New(hosterrors.Custom, "decode", detail)
}
