package udp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(Config{Addr: "127.0.0.1:0", SecretRotationInterval: time.Hour}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestHandleDatagramConnectIssuesValidConnectionID(t *testing.T) {
	s := newTestServer(t)

	client, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer client.Close()

	packet := make([]byte, 16)
	copy(packet[0:8], initialConnectionID)
	// action = connectActionID (0) already zero
	txID := []byte{1, 2, 3, 4}
	copy(packet[12:16], txID)

	clientAddr := client.LocalAddr().(*net.UDPAddr)
	s.handleDatagram(packet, clientAddr.IP, clientAddr)

	require.EqualValues(t, 0, s.droppedBadConnID.Load())

	resp := make([]byte, 64)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := client.Read(resp)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	require.Equal(t, txID, resp[4:8])
	require.True(t, validateConnectionID(resp[8:16], clientAddr.IP, time.Now(), time.Minute, s.rot))
}

func TestHandleDatagramDropsBadConnectionIDSilently(t *testing.T) {
	s := newTestServer(t)

	packet := make([]byte, 16)
	// garbage connection ID, action = announceActionID
	packet[11] = byte(announceActionID)

	clientAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9}
	s.handleDatagram(packet, clientAddr.IP, clientAddr)

	require.EqualValues(t, 1, s.droppedBadConnID.Load())
}

func TestHandleDatagramDropsShortPacket(t *testing.T) {
	s := newTestServer(t)
	s.handleDatagram(make([]byte, 4), net.ParseIP("127.0.0.1"), &net.UDPAddr{Port: 9})
	require.EqualValues(t, 1, s.droppedMalformed.Load())
}
