package ipam

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T) *Allocator {
	return New(filepath.Join(t.TempDir(), "ipam", "subnet.json"))
}

func TestAllocateFirstAddress(t *testing.T) {
	a := newTestAllocator(t)
	ip, err := a.Allocate("192.168.5.0/24")
	require.NoError(t, err)
	assert.Equal(t, "192.168.5.2", ip)

	ip, err = a.Allocate("192.168.5.0/24")
	require.NoError(t, err)
	assert.Equal(t, "192.168.5.3", ip)
}

func TestGateway(t *testing.T) {
	gw, err := Gateway("192.168.5.0/24")
	require.NoError(t, err)
	assert.Equal(t, "192.168.5.1", gw)

	// host bits in the CIDR are ignored
	gw, err = Gateway("10.0.3.77/24")
	require.NoError(t, err)
	assert.Equal(t, "10.0.3.1", gw)

	_, err = Gateway("fd00::/64")
	assert.Error(t, err)
}

func TestReleaseThenReuse(t *testing.T) {
	a := newTestAllocator(t)
	ip, err := a.Allocate("192.168.5.0/24")
	require.NoError(t, err)
	require.Equal(t, "192.168.5.2", ip)

	ok, err := a.Release("192.168.5.0/24", ip)
	require.NoError(t, err)
	assert.True(t, ok)

	ip, err = a.Allocate("192.168.5.0/24")
	require.NoError(t, err)
	assert.Equal(t, "192.168.5.2", ip)
}

func TestReleaseUnallocated(t *testing.T) {
	a := newTestAllocator(t)
	ok, err := a.Release("192.168.5.0/24", "192.168.5.9")
	require.NoError(t, err)
	assert.False(t, ok)

	// the gateway is never released
	ok, err = a.Release("192.168.5.0/24", "192.168.5.1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.Release("192.168.5.0/24", "10.0.0.2")
	assert.Error(t, err)
}

func TestExhaustion24(t *testing.T) {
	a := newTestAllocator(t)
	seen := make(map[string]bool)
	for i := 0; i < usable24-1; i++ {
		ip, err := a.Allocate("192.168.9.0/24")
		require.NoError(t, err, "allocation %d", i)
		require.False(t, seen[ip], "duplicate %s", ip)
		seen[ip] = true
	}
	assert.True(t, seen["192.168.9.254"])

	ip, err := a.Allocate("192.168.9.0/24")
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, "", ip)
}

func TestNon24UsesFlatCount(t *testing.T) {
	a := newTestAllocator(t)
	var last string
	for i := 0; i < defaultUsable-1; i++ {
		ip, err := a.Allocate("10.1.0.0/16")
		require.NoError(t, err)
		last = ip
	}
	assert.Equal(t, "10.1.0.30", last)
	_, err := a.Allocate("10.1.0.0/16")
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestSubnetsAreIndependent(t *testing.T) {
	a := newTestAllocator(t)
	ip1, err := a.Allocate("192.168.1.0/24")
	require.NoError(t, err)
	ip2, err := a.Allocate("192.168.2.0/24")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.2", ip1)
	assert.Equal(t, "192.168.2.2", ip2)

	require.NoError(t, a.ReleaseSubnet("192.168.1.0/24"))
	bm, err := a.Allocated("192.168.1.0/24")
	require.NoError(t, err)
	assert.Empty(t, bm)
	bm, err = a.Allocated("192.168.2.0/24")
	require.NoError(t, err)
	assert.Len(t, bm, usable24)
}

func TestStatePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subnet.json")
	ip, err := New(path).Allocate("172.20.0.0/24")
	require.NoError(t, err)
	assert.Equal(t, "172.20.0.2", ip)

	ip, err = New(path).Allocate("172.20.0.0/24")
	require.NoError(t, err)
	assert.Equal(t, "172.20.0.3", ip)
}

func TestConcurrentAllocatorsNeverShareAnAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subnet.json")
	const n = 40

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ips = make(map[string]int)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ip, err := New(path).Allocate("192.168.50.0/24")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ips[ip]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ips, n)
	for ip, c := range ips {
		assert.Equal(t, 1, c, "address %s handed out %d times", ip, c)
	}
}

func TestInvalidSubnet(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.Allocate("192.168.1.0")
	assert.Error(t, err)
	_, err = a.Allocate("192.168.1.0/31")
	assert.Error(t, err)
	_, err = Gateway("192.168.1.0/32")
	assert.Error(t, err)
}

func TestSmallSubnetStaysInside(t *testing.T) {
	const subnet = "10.0.0.0/28"
	a := newTestAllocator(t)
	var last string
	for i := 0; i < 13; i++ {
		ip, err := a.Allocate(subnet)
		require.NoError(t, err, "allocation %d", i)
		last = ip
	}
	assert.Equal(t, "10.0.0.14", last)

	_, err := a.Allocate(subnet)
	assert.ErrorIs(t, err, ErrExhausted)

	ok, err := a.Release(subnet, "10.0.0.14")
	require.NoError(t, err)
	assert.True(t, ok)
	ip, err := a.Allocate(subnet)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.14", ip)

	bitmap, err := a.Allocated(subnet)
	require.NoError(t, err)
	assert.Len(t, bitmap, 14)
}

func TestUsableCount(t *testing.T) {
	tests := []struct {
		subnet string
		want   int
	}{
		{"10.0.0.0/24", 254},
		{"10.0.0.0/16", 30},
		{"10.0.0.0/27", 30},
		{"10.0.0.0/28", 14},
		{"10.0.0.0/29", 6},
		{"10.0.0.0/30", 2},
	}
	for _, tt := range tests {
		t.Run(tt.subnet, func(t *testing.T) {
			ipnet, err := parseSubnet(tt.subnet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, usableCount(ipnet))
		})
	}
}
