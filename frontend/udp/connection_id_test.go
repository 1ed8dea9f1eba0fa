package udp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectionIDRoundTrip(t *testing.T) {
	ip := net.ParseIP("127.0.0.1")
	now := time.Unix(1000, 0)
	secret := []byte("a-secret")

	id := newConnectionIDGenerator(secret).generate(ip, now)
	assert.True(t, newConnectionIDGenerator(secret).validate(id, ip, now, time.Minute))
}

func TestConnectionIDRejectsTamperedID(t *testing.T) {
	ip := net.ParseIP("127.0.0.1")
	now := time.Unix(1000, 0)
	secret := []byte("a-secret")

	id := newConnectionIDGenerator(secret).generate(ip, now)
	id[7] ^= 0xff
	assert.False(t, newConnectionIDGenerator(secret).validate(id, ip, now, time.Minute))
}

func TestConnectionIDRejectsWrongIP(t *testing.T) {
	now := time.Unix(1000, 0)
	secret := []byte("a-secret")

	id := newConnectionIDGenerator(secret).generate(net.ParseIP("127.0.0.1"), now)
	assert.False(t, newConnectionIDGenerator(secret).validate(id, net.ParseIP("127.0.0.2"), now, time.Minute))
}

func TestConnectionIDExpires(t *testing.T) {
	ip := net.ParseIP("127.0.0.1")
	now := time.Unix(1000, 0)
	secret := []byte("a-secret")

	id := newConnectionIDGenerator(secret).generate(ip, now)
	later := now.Add(connIDTTL + time.Second)
	assert.False(t, newConnectionIDGenerator(secret).validate(id, ip, later, time.Minute))
}

func TestValidateConnectionIDAcceptsPreviousSecret(t *testing.T) {
	ip := net.ParseIP("127.0.0.1")
	now := time.Unix(1000, 0)
	oldSecret := []byte("old-secret")

	id := newConnectionIDGenerator(oldSecret).generate(ip, now)

	rot := &secretRotator{current: []byte("new-secret"), previous: oldSecret}
	assert.True(t, validateConnectionID(id, ip, now, time.Minute, rot))
}

func TestValidateConnectionIDRejectsUnknownSecret(t *testing.T) {
	ip := net.ParseIP("127.0.0.1")
	now := time.Unix(1000, 0)

	id := newConnectionIDGenerator([]byte("attacker-guess")).generate(ip, now)

	rot := &secretRotator{current: []byte("new-secret"), previous: []byte("old-secret")}
	assert.False(t, validateConnectionID(id, ip, now, time.Minute, rot))
}
