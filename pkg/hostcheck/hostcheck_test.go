package hostcheck

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRelease(t *testing.T) {
	tests := []struct {
		in   string
		want Release
	}{
		{"5.15.0-91-generic", Release{5, 15}},
		{"5.4.0", Release{5, 4}},
		{"6.1", Release{6, 1}},
		{"4.15.0", Release{4, 15}},
		{"6.8-rc1", Release{6, 8}},
	}
	for _, tt := range tests {
		got, err := ParseRelease(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "5", "x.4", "5.x"} {
		_, err := ParseRelease(bad)
		assert.Error(t, err, bad)
	}
}

func TestHost_Check(t *testing.T) {
	assert.NoError(t, Host{Release: "5.4.0-42-generic", Machine: "x86_64"}.Check())
	// 5.10 must not compare as 5.1
	assert.NoError(t, Host{Release: "5.10.0", Machine: "x86_64"}.Check())

	var ue *UnsupportedError
	err := Host{Release: "4.15.0", Machine: "x86_64"}.Check()
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, ReasonKernel, ue.Reason)

	err = Host{Release: "6.1.0", Machine: "aarch64"}.Check()
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, ReasonArch, ue.Reason)
	assert.Equal(t, "hostcheck: not supported by Machine architecture: aarch64", err.Error())

	err = Host{Release: "garbage", Machine: "x86_64"}.Check()
	assert.Error(t, err)
	assert.False(t, errors.As(err, &ue))
}
