package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Address
		wantErr bool
	}{
		{name: "colon upper", in: "AA:BB:CC:DD:EE:FF", want: 0xAABBCCDDEEFF},
		{name: "dash lower", in: "01-23-45-67-89-ab", want: 0x0123456789AB},
		{name: "padded", in: "  00:00:00:00:00:01 ", want: 1},
		{name: "too short", in: "AA:BB:CC", wantErr: true},
		{name: "bad octet", in: "AA:BB:CC:DD:EE:GG", wantErr: true},
		{name: "long octet", in: "AAA:BB:CC:DD:EE:FF", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddressString(t *testing.T) {
	a := MustParseAddress("aa:bb:cc:dd:ee:0f")
	assert.Equal(t, "AA:BB:CC:DD:EE:0F", a.String())
	assert.Panics(t, func() { MustParseAddress("nope") })
}

func TestCopyOut(t *testing.T) {
	src := []byte{1, 2, 3}

	n, s := CopyOut(nil, src)
	assert.Equal(t, 3, n, "nil destination reports the required length")
	assert.Equal(t, StatusOK, s)

	short := make([]byte, 2)
	n, s = CopyOut(short, src)
	assert.Equal(t, 3, n)
	assert.Equal(t, StatusInvalidArgument, s)
	assert.Equal(t, []byte{0, 0}, short, "short destination must stay untouched")

	dst := make([]byte, 8)
	n, s = CopyOut(dst, src)
	assert.Equal(t, 3, n)
	assert.Equal(t, StatusOK, s)
	assert.Equal(t, src, dst[:n])
}
