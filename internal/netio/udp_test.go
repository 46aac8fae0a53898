// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package netio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUDPConnRoundTrip(t *testing.T) {
	recv, err := Listen("127.0.0.1:0", 1500)
	require.NoError(t, err)
	defer recv.Close()

	sender, err := Listen("127.0.0.1:0", 1500)
	require.NoError(t, err)
	defer sender.Close()

	msg := []byte{1, 2, 3, 4}
	require.NoError(t, sender.Send(msg, recv.LocalAddr()))

	dg, err := recv.Recv()
	require.NoError(t, err)
	require.Equal(t, msg, dg.Bytes)
	require.False(t, dg.Arrival.IsZero())
}
