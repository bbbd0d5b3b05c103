package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRevision(t *testing.T) {
	tests := []struct {
		rev          Revision
		valid        bool
		usedSize     bool
		mutationFlag bool
		str          string
	}{
		{RevisionUnknown, false, false, false, "unknown"},
		{Revision2, true, false, false, "rev2"},
		{Revision3, true, true, false, "rev3"},
		{Revision4, true, true, true, "rev4"},
		{Revision(5), false, true, true, "rev5"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.rev.Valid())
			assert.Equal(t, tt.usedSize, tt.rev.SupportsUsedSize())
			assert.Equal(t, tt.mutationFlag, tt.rev.SupportsMutationFlag())
			assert.Equal(t, tt.str, tt.rev.String())
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatWasm, FormatFromPath("plugins/dlib.wasm"))
	assert.Equal(t, FormatWasm, FormatFromPath("DLIB.WASM"))
	assert.Equal(t, FormatNative, FormatFromPath("build/libdlib.dylib"))
	assert.Equal(t, FormatNative, FormatFromPath("libdlib.so"))
	assert.Equal(t, FormatNative, FormatFromPath("dlib.dll"))
}

func TestExchangeResult_Wrote(t *testing.T) {
	assert.True(t, ExchangeResult{Written: 28, Capacity: 64}.Wrote())
	assert.False(t, ExchangeResult{Written: 0, Capacity: 8}.Wrote())
	assert.False(t, ExchangeResult{Written: 28, Capacity: 64, Query: true}.Wrote())
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{Library: "libdlib.so"}
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultBufferSize, cfg.BufferSize)
	assert.Equal(t, "info", cfg.LogLevel)

	cfg = Config{Library: "libdlib.so", BufferSize: 128, LogLevel: "debug"}
	cfg.ApplyDefaults()
	assert.Equal(t, 128, cfg.BufferSize)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestErrorDetail_Error(t *testing.T) {
	detail := NewErrorDetail("symbol", "cannot resolve exchange_inplace").WithCode("exchange_inplace")
	assert.Equal(t, "symbol: cannot resolve exchange_inplace [exchange_inplace]", detail.Error())

	var nilDetail *ErrorDetail
	assert.Equal(t, "", nilDetail.Error())

	internal := NewErrorDetail("internal", "boom")
	assert.Equal(t, "boom", internal.Error())
}
